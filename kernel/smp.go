package kernel

// Generic cluster operations shared by every policy. All of them run with
// s.mu held; thread scheduler state is read and written under t.schedMu.

func (s *Scheduler) tryToSchedule(n *Node) bool {
	owner := n.owner
	owner.schedMu.Lock()
	state := owner.schedState
	if state == ThreadReady {
		owner.cancelHelp()
		owner.schedState = ThreadScheduled
		owner.schedMu.Unlock()
		return true
	}
	owner.schedMu.Unlock()
	if (state == ThreadScheduled && n.sticky <= 1) || n.sticky == 0 {
		n.state = NodeBlocked
		return false
	}
	s.useIdle(n)
	return true
}

// preempt gives the processor of victim to scheduled. exact skips the
// affinity swap of allocate.
func (s *Scheduler) preempt(scheduled, victim *Node, victimIdle *Thread, exact bool) {
	victim.state = NodeReady
	owner := victim.owner
	var cpu *Processor
	owner.schedMu.Lock()
	if victimIdle == nil {
		if owner.schedState == ThreadScheduled {
			owner.schedState = ThreadReady
			if owner.helpingNodes() > 0 {
				owner.requestHelp()
			}
		}
		cpu = owner.cpu.Load()
	} else {
		cpu = victimIdle.cpu.Load()
	}
	owner.schedMu.Unlock()
	if exact {
		scheduled.state = NodeScheduled
		s.allocateExact(scheduled, cpu)
		return
	}
	s.allocate(scheduled, cpu)
}

func (s *Scheduler) enqueueToScheduled(n, lowest *Node) {
	lowestIdle := s.releaseIdleIfNecessary(lowest)
	s.moveFromScheduledToReady(lowest)
	if s.tryToSchedule(n) {
		s.preempt(n, lowest, lowestIdle, false)
		s.insertScheduled(n)
		return
	}
	if lowestIdle != nil {
		s.useIdle(lowest)
	}
	s.moveFromReadyToScheduled(lowest)
}

// enqueue inserts a node that is not scheduled. It reports whether the node
// ended up ready, that is whether its owner may need help elsewhere.
func (s *Scheduler) enqueue(n *Node, appendIt bool) bool {
	s.stamp(n, appendIt)
	lowest := s.lowestScheduled(n)
	if lowest != nil && nodeLessEqual(n, lowest) {
		s.enqueueToScheduled(n, lowest)
		return false
	}
	n.state = NodeReady
	s.insertReady(n, appendIt)
	return true
}

// enqueueScheduled places a node that was just extracted from the
// scheduled set back into the scheduled or the ready set.
func (s *Scheduler) enqueueScheduled(n *Node, appendIt bool) {
	nodeIdle := s.releaseIdleIfNecessary(n)
	s.stamp(n, appendIt)
	for {
		hr := s.highestReady(n)
		if hr == nil || (n.sticky > 0 && nodeLessEqual(n, hr)) {
			if nodeIdle != nil {
				owner := n.owner
				owner.schedMu.Lock()
				if owner.schedState == ThreadReady {
					owner.cancelHelp()
					owner.schedState = ThreadScheduled
					cpu := nodeIdle.cpu.Load()
					owner.cpu.Store(cpu)
					owner.schedMu.Unlock()
					cpu.updateHeir(owner)
				} else {
					owner.schedMu.Unlock()
					s.useIdle(n)
				}
			}
			s.insertScheduled(n)
			return
		}
		if s.tryToSchedule(hr) {
			s.preempt(hr, n, nodeIdle, false)
			s.moveFromReadyToScheduled(hr)
			s.insertReady(n, appendIt)
			return
		}
		s.extractFromReady(hr)
	}
}

func (s *Scheduler) scheduleHighestReady(victim *Node, cpu *Processor) {
	victim.state = NodeBlocked
	s.extractFromScheduled(victim)
	for {
		hr := s.highestReady(victim)
		if hr == nil {
			s.sys.Halt(FatalNoIdleNode, victim.owner, s.name)
		}
		if s.tryToSchedule(hr) {
			s.allocate(hr, cpu)
			s.moveFromReadyToScheduled(hr)
			return
		}
		s.extractFromReady(hr)
	}
}

func (s *Scheduler) preemptAndScheduleHighestReady(victim *Node) {
	victim.state = NodeReady
	victimIdle := s.releaseIdleIfNecessary(victim)
	for {
		hr := s.highestReady(victim)
		if hr == nil {
			s.sys.Halt(FatalNoIdleNode, victim.owner, s.name)
		}
		if s.tryToSchedule(hr) {
			s.preempt(hr, victim, victimIdle, false)
			s.moveFromReadyToScheduled(hr)
			return
		}
		s.extractFromReady(hr)
	}
}

func (s *Scheduler) block(t *Thread, n *Node) {
	s.event(EventBlock, t, -1, 0)
	n.sticky--
	t.schedMu.Lock()
	t.cancelHelp()
	cpu := t.cpu.Load()
	t.schedState = ThreadBlocked
	t.schedMu.Unlock()

	if n.sticky > 0 {
		if n.state == NodeScheduled && n.idle == nil {
			idle := s.useIdle(n)
			idle.cpu.Store(cpu)
			cpu.updateHeir(idle)
		}
		return
	}
	switch n.state {
	case NodeScheduled:
		s.scheduleHighestReady(n, cpu)
	case NodeReady:
		n.state = NodeBlocked
		s.extractFromReady(n)
	}
}

func (s *Scheduler) unblock(t *Thread, n *Node) {
	s.event(EventUnblock, t, -1, 0)
	n.sticky++
	if n.state == NodeScheduled {
		t.schedMu.Lock()
		t.schedState = ThreadScheduled
		t.schedMu.Unlock()
		s.discardIdle(t, n)
		return
	}
	t.schedMu.Lock()
	t.schedState = ThreadReady
	t.schedMu.Unlock()

	p, _ := n.insertPriority()
	n.priority = p
	if n.state == NodeBlocked {
		if s.enqueue(n, true) {
			t.schedMu.Lock()
			if t.helpingNodes() > 0 {
				t.requestHelp()
			}
			t.schedMu.Unlock()
		}
		return
	}
	t.schedMu.Lock()
	t.requestHelp()
	t.schedMu.Unlock()
}

// updatePriority repositions n after its published priority changed.
// ready reports whether the thread has no blocking life states.
func (s *Scheduler) updatePriority(t *Thread, n *Node, ready bool) {
	p, appendIt := n.insertPriority()
	if p == n.priority {
		if ready {
			s.askForHelp(t, n)
		}
		return
	}
	s.event(EventUpdatePriority, t, -1, s.UnmapPriority(p))
	switch n.state {
	case NodeScheduled:
		s.extractFromScheduled(n)
		n.priority = p
		s.enqueueScheduled(n, appendIt)
	case NodeReady:
		s.extractFromReady(n)
		n.priority = p
		s.enqueue(n, appendIt)
	default:
		n.priority = p
		if ready {
			s.askForHelp(t, n)
		}
	}
}

func (s *Scheduler) yield(t *Thread, n *Node) {
	s.event(EventYield, t, -1, 0)
	switch n.state {
	case NodeScheduled:
		s.extractFromScheduled(n)
		s.enqueueScheduled(n, true)
	case NodeReady:
		s.extractFromReady(n)
		s.enqueue(n, true)
	}
}

// askForHelp offers n to the scheduler. It reports whether the thread no
// longer needs help.
func (s *Scheduler) askForHelp(t *Thread, n *Node) bool {
	if t.pinnedNode.Load() != nil {
		return true
	}
	lowest := s.lowestScheduled(n)
	t.schedMu.Lock()
	if t.schedState != ThreadReady {
		t.schedMu.Unlock()
		return false
	}
	switch n.state {
	case NodeBlocked:
		s.event(EventAskForHelp, t, -1, 0)
		s.stamp(n, false)
		if lowest != nil && nodeLessEqual(n, lowest) {
			t.cancelHelp()
			t.schedState = ThreadScheduled
			t.schedMu.Unlock()
			lowestIdle := s.releaseIdleIfNecessary(lowest)
			s.preempt(n, lowest, lowestIdle, false)
			s.moveFromScheduledToReady(lowest)
			s.insertScheduled(n)
			return true
		}
		t.schedMu.Unlock()
		n.state = NodeReady
		s.insertReady(n, false)
		return false
	case NodeScheduled:
		t.cancelHelp()
		t.schedState = ThreadScheduled
		t.schedMu.Unlock()
		s.discardIdle(t, n)
		return true
	}
	t.schedMu.Unlock()
	return false
}

func (s *Scheduler) reconsiderHelpRequest(t *Thread, n *Node) {
	t.schedMu.Lock()
	defer t.schedMu.Unlock()
	if t.schedState == ThreadScheduled && n.state == NodeReady && n.sticky == 1 {
		n.state = NodeBlocked
		s.extractFromReady(n)
	}
}

func (s *Scheduler) withdrawNode(t *Thread, n *Node, next ThreadSchedState) {
	s.event(EventWithdraw, t, -1, 0)
	t.schedMu.Lock()
	switch n.state {
	case NodeScheduled:
		cpu := t.cpu.Load()
		if idle := n.idle; idle != nil {
			cpu = idle.cpu.Load()
			t.schedMu.Unlock()
			s.releaseIdleThread(n, idle)
		} else {
			t.schedState = next
			if next == ThreadReady {
				t.requestHelp()
			}
			t.schedMu.Unlock()
		}
		s.scheduleHighestReady(n, cpu)
	case NodeReady:
		t.schedMu.Unlock()
		n.state = NodeBlocked
		s.extractFromReady(n)
	default:
		t.schedMu.Unlock()
	}
}

// makeSticky enqueues the home node of a thread that keeps its processor
// while it waits. The caller raised the sticky level.
func (s *Scheduler) makeSticky(t *Thread, n *Node) {
	s.event(EventMakeSticky, t, -1, 0)
	if n.state != NodeBlocked {
		return
	}
	p, _ := n.insertPriority()
	n.priority = p
	s.enqueue(n, true)
}

// cleanSticky gives up a processor that an idle thread kept on behalf of
// the node. The caller lowered the sticky level.
func (s *Scheduler) cleanSticky(t *Thread, n *Node) {
	s.event(EventCleanSticky, t, -1, 0)
	if n.state != NodeScheduled || n.idle == nil {
		return
	}
	idle := n.idle
	s.releaseIdleThread(n, idle)
	s.scheduleHighestReady(n, idle.cpu.Load())
}

func (s *Scheduler) startIdle(idle *Thread, cpu *Processor) {
	n := idle.nodes[s.index]
	idle.schedMu.Lock()
	idle.schedState = ThreadScheduled
	idle.schedMu.Unlock()
	n.state = NodeScheduled
	idle.cpu.Store(cpu)
	s.allocated[cpu.index] = n
	s.stamp(n, true)
	s.scheduled = append(s.scheduled, n)
	cpu.mu.Lock()
	cpu.executing = idle
	cpu.heir = idle
	cpu.mu.Unlock()
}

func (s *Scheduler) addProcessor(idle *Thread, cpu *Processor) {
	s.event(EventAddProcessor, idle, cpu.index, 0)
	n := idle.nodes[s.index]
	idle.schedMu.Lock()
	idle.schedState = ThreadScheduled
	idle.schedMu.Unlock()
	n.state = NodeScheduled
	n.user = idle
	idle.cpu.Store(cpu)
	s.allocated[cpu.index] = n
	s.processors = s.processors.Add(cpu.index)
	cpu.updateHeir(idle)
	if s.highestReady(n) != nil {
		s.enqueueScheduled(n, true)
		return
	}
	s.stamp(n, true)
	s.insertScheduled(n)
}

// removeProcessor detaches cpu and returns the idle thread left on it.
func (s *Scheduler) removeProcessor(cpu *Processor) *Thread {
	var victim *Node
	for _, n := range s.scheduled {
		if n.user.cpu.Load() == cpu {
			victim = n
			break
		}
	}
	s.event(EventRemoveProcessor, victim.owner, cpu.index, 0)
	s.processors = s.processors.Remove(cpu.index)
	s.extractFromScheduled(victim)
	s.allocated[cpu.index] = nil
	owner := victim.owner
	if owner.idle {
		return owner
	}
	victimIdle := s.releaseIdleIfNecessary(victim)
	idle := s.getIdle()
	s.preempt(idle.nodes[s.index], victim, victimIdle, true)
	s.allocated[cpu.index] = nil
	s.enqueue(victim, true)
	return idle
}

func (s *Scheduler) setAffinity(t *Thread, n *Node, rqi int) {
	s.event(EventSetAffinity, t, -1, 0)
	n.affinityRQI = rqi
	if n.pinned {
		return
	}
	switch n.state {
	case NodeScheduled:
		s.extractFromScheduled(n)
		s.preemptAndScheduleHighestReady(n)
		n.rqi = rqi
		s.enqueue(n, true)
	case NodeReady:
		s.extractFromReady(n)
		n.rqi = rqi
		s.enqueue(n, true)
	default:
		n.rqi = rqi
	}
}
