package kernel

// Tick delivers one clock tick to processor cpu. Processor 0 also drives
// the system clock that job deadlines are measured against.
func (s *System) Tick(cpu int) {
	p := s.processors[cpu]
	now := p.ticks.Add(1)
	if cpu == 0 {
		s.clock.Add(1)
	}
	for _, w := range p.expireWatchdogs(now) {
		w.fire()
	}
	if t := p.Executing(); t != nil && !t.idle && t.timeSlice && s.cfg.TimeSliceTicks > 0 {
		if t.budget.Add(-1) <= 0 {
			t.budget.Store(int32(s.cfg.TimeSliceTicks))
			if t.States() == StateReady {
				t.Yield()
			}
		}
	}
	s.dispatchPending()
}

// TickAll delivers a tick to every online processor through its job
// mailbox.
func (s *System) TickAll() {
	s.Broadcast(func(p *Processor) { s.Tick(p.index) })
}
