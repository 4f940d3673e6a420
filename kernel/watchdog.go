package kernel

// watchdog fires once after a number of ticks of its processor.
type watchdog struct {
	cpu    *Processor
	expire uint64
	seq    uint64
	fire   func()
	// Guarded by cpu.mu.
	armed bool
}

func watchdogLess(a, b *watchdog) bool {
	if a.expire != b.expire {
		return a.expire < b.expire
	}
	return a.seq < b.seq
}

// armWatchdog schedules fire to run delta ticks from now. fire runs
// without kernel locks held.
func (p *Processor) armWatchdog(delta uint64, fire func()) *watchdog {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchdogSeq++
	w := &watchdog{
		cpu:    p,
		expire: p.ticks.Load() + delta,
		seq:    p.watchdogSeq,
		fire:   fire,
		armed:  true,
	}
	p.watchdogs.ReplaceOrInsert(w)
	return w
}

// cancel reports whether the watchdog was still armed.
func (w *watchdog) cancel() bool {
	p := w.cpu
	p.mu.Lock()
	defer p.mu.Unlock()
	if !w.armed {
		return false
	}
	w.armed = false
	p.watchdogs.Delete(w)
	return true
}

func (p *Processor) expireWatchdogs(now uint64) []*watchdog {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*watchdog
	for {
		w, ok := p.watchdogs.Min()
		if !ok || w.expire > now {
			return out
		}
		p.watchdogs.DeleteMin()
		w.armed = false
		out = append(out, w)
	}
}

// PendingWatchdogs returns the number of armed watchdogs of p.
func (p *Processor) PendingWatchdogs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watchdogs.Len()
}
