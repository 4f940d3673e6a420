package kernel

// requestHelp posts a help request on the processor of t. A thread has at
// most one pending request. Called with t.schedMu held.
func (t *Thread) requestHelp() {
	if t.helpCPU != nil {
		return
	}
	cpu := t.cpu.Load()
	t.helpCPU = cpu
	cpu.mu.Lock()
	cpu.help = append(cpu.help, t)
	cpu.dispatchNecessary = true
	cpu.mu.Unlock()
	t.sys.poke(cpu)
}

// cancelHelp drops a pending help request. Called with t.schedMu held.
func (t *Thread) cancelHelp() {
	cpu := t.helpCPU
	if cpu == nil {
		return
	}
	t.helpCPU = nil
	cpu.mu.Lock()
	cpu.removeHelp(t)
	cpu.mu.Unlock()
}

// HelpPending reports whether t waits for another scheduler to take it.
func (t *Thread) HelpPending() bool {
	t.schedMu.Lock()
	defer t.schedMu.Unlock()
	return t.helpCPU != nil
}

func (p *Processor) removeHelp(t *Thread) {
	for i, x := range p.help {
		if x == t {
			p.help = append(p.help[:i], p.help[i+1:]...)
			return
		}
	}
}

// processHelp serves the help requests posted on p.
func (p *Processor) processHelp() {
	for {
		p.mu.Lock()
		if len(p.help) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.help[0]
		p.mu.Unlock()

		t.schedMu.Lock()
		p.mu.Lock()
		p.removeHelp(t)
		p.mu.Unlock()
		mine := t.helpCPU == p
		if mine {
			t.helpCPU = nil
		}
		t.schedMu.Unlock()
		if mine {
			t.askForHelp()
		}
	}
}

// askForHelp offers the scheduler nodes of t, home first, until one
// scheduler takes it. A thread that is not ready does not ask.
func (t *Thread) askForHelp() {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.states != StateReady {
		return
	}
	t.schedMu.Lock()
	nodes := append([]*Node(nil), t.schedNodes...)
	t.schedMu.Unlock()
	for _, n := range nodes {
		s := n.sched
		s.mu.Lock()
		done := s.askForHelp(t, n)
		s.mu.Unlock()
		if done {
			return
		}
	}
}

// reconsiderHelp takes the sticky home node of a thread that got scheduled
// elsewhere out of its ready queue.
func (t *Thread) reconsiderHelp() {
	t.schedMu.Lock()
	nodes := append([]*Node(nil), t.schedNodes...)
	t.schedMu.Unlock()
	for _, n := range nodes {
		s := n.sched
		s.mu.Lock()
		s.reconsiderHelpRequest(t, n)
		s.mu.Unlock()
	}
}
