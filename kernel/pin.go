package kernel

// Pin keeps t on its current processor until the matching Unpin. Pins
// nest. Only a scheduled thread can pin, and a pinned thread is never
// helped.
func (t *Thread) Pin() Status {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.pinLevel > 0 {
		t.pinLevel++
		return StatusSuccessful
	}
	cpu := t.cpu.Load()
	s := cpu.Scheduler()
	if s == nil {
		return StatusIncorrectState
	}
	n := t.nodes[s.index]
	t.schedMu.Lock()
	scheduled := t.schedState == ThreadScheduled
	t.schedMu.Unlock()
	s.mu.Lock()
	if !scheduled || n.state != NodeScheduled || n.user != t || s.allocated[cpu.index] != n {
		s.mu.Unlock()
		return StatusIncorrectState
	}
	s.event(EventPin, t, cpu.index, 0)
	if n.rqi != 0 && s.affineScheduled[n.rqi] == n {
		s.affineScheduled[n.rqi] = nil
	}
	n.rqi = cpu.index + 1
	s.affineScheduled[n.rqi] = n
	n.pinned = true
	s.mu.Unlock()

	t.pinnedNode.Store(n)
	t.pinLevel = 1
	t.schedMu.Lock()
	t.cancelHelp()
	t.schedMu.Unlock()
	return StatusSuccessful
}

// Unpin undoes one Pin. The last one restores the affinity of the node and
// lets the thread ask for help again.
func (t *Thread) Unpin() Status {
	t.stateMu.Lock()
	defer t.sys.dispatchPending()
	defer t.stateMu.Unlock()
	switch {
	case t.pinLevel == 0:
		return StatusIncorrectState
	case t.pinLevel > 1:
		t.pinLevel--
		return StatusSuccessful
	}
	t.pinLevel = 0
	n := t.pinnedNode.Load()
	s := n.sched
	s.mu.Lock()
	s.event(EventUnpin, t, n.rqi-1, 0)
	n.pinned = false
	if n.rqi != n.affinityRQI {
		switch n.state {
		case NodeScheduled:
			if n.affinityRQI == 0 {
				if s.affineScheduled[n.rqi] == n {
					s.affineScheduled[n.rqi] = nil
				}
				n.rqi = 0
				break
			}
			s.extractFromScheduled(n)
			s.preemptAndScheduleHighestReady(n)
			n.rqi = n.affinityRQI
			s.enqueue(n, true)
		case NodeReady:
			s.extractFromReady(n)
			n.rqi = n.affinityRQI
			s.enqueue(n, true)
		default:
			n.rqi = n.affinityRQI
		}
	}
	s.mu.Unlock()
	t.pinnedNode.Store(nil)

	if t.states == StateReady {
		t.schedMu.Lock()
		if t.schedState == ThreadReady && t.helpingNodes() > 0 {
			t.requestHelp()
		}
		t.schedMu.Unlock()
	}
	t.updatePriorityLocked(stickyKeep)
	return StatusSuccessful
}
