package kernel

import "smpcore/kernel/prio"

// MrsP is a multiprocessor resource with one ceiling per scheduler. A
// contended obtain keeps the waiter scheduled at its ceiling while the
// owner may be helped on the waiter's processors.
type MrsP struct {
	sys *System
	q   *ThreadQueue

	// Guarded by sys.pathMu.
	ceilings    []Priority
	ceilingNode prio.Node
	deleted     bool
}

// NewMrsP creates a free resource. Every scheduler starts with ceiling.
func (s *System) NewMrsP(name string, sched *Scheduler, ceiling Priority) (*MrsP, Status) {
	if sched == nil {
		sched = s.schedulers[0]
	}
	if !sched.ValidPriority(ceiling) {
		return nil, StatusInvalidPriority
	}
	m := &MrsP{
		sys:      s,
		q:        newThreadQueue(s, name, DisciplinePriorityInherit, true),
		ceilings: make([]Priority, len(s.schedulers)),
	}
	for i := range m.ceilings {
		m.ceilings[i] = ceiling
	}
	return m, StatusSuccessful
}

func (m *MrsP) Name() string        { return m.q.name }
func (m *MrsP) Queue() *ThreadQueue { return m.q }
func (m *MrsP) Owner() *Thread      { return m.q.Owner() }

// Ceiling returns the ceiling priority on s.
func (m *MrsP) Ceiling(s *Scheduler) Priority {
	m.sys.pathMu.Lock()
	defer m.sys.pathMu.Unlock()
	return m.ceilings[s.index]
}

// SetCeiling replaces the ceiling on s. A zero priority only returns the
// current ceiling. The contribution of a current owner keeps its value
// until the next surrender.
func (m *MrsP) SetCeiling(s *Scheduler, p Priority) (old Priority, st Status) {
	m.sys.pathMu.Lock()
	defer m.sys.pathMu.Unlock()
	old = m.ceilings[s.index]
	if p == 0 {
		return old, StatusSuccessful
	}
	if !s.ValidPriority(p) {
		return old, StatusInvalidPriority
	}
	m.ceilings[s.index] = p
	return old, StatusSuccessful
}

type mrspOutcome uint8

const (
	mrspDone mrspOutcome = iota
	mrspClaimed
	mrspWaiting
)

// Obtain acquires m for t. A contended obtain with wait returns a pending
// Wait; t stays on its processor until the resource is handed over or the
// timeout expires.
func (m *MrsP) Obtain(t *Thread, wait bool, timeout uint64) *Wait {
	var acts prioActions
	w, outcome := m.obtainLocked(t, wait, timeout, &acts)
	switch outcome {
	case mrspClaimed:
		m.sys.updatePriorities(&acts)
		t.updatePriority(stickyMake)
	case mrspWaiting:
		m.q.block(t, true, &acts)
	default:
		m.sys.updatePriorities(&acts)
	}
	m.sys.dispatchPending()
	return w
}

func (m *MrsP) obtainLocked(t *Thread, wait bool, timeout uint64, acts *prioActions) (*Wait, mrspOutcome) {
	sys := m.sys
	sys.pathMu.Lock()
	defer sys.pathMu.Unlock()
	m.q.mu.Lock()
	defer m.q.mu.Unlock()

	if m.deleted {
		return completedWait(t, StatusObjectWasDeleted), mrspDone
	}
	home := t.Home()
	ceiling := home.MapPriority(m.ceilings[home.index])
	if p, _ := t.homeNode().insertPriority(); p < ceiling {
		return completedWait(t, StatusInvalidPriority), mrspDone
	}
	switch owner := m.q.owner; {
	case owner == nil:
		m.q.owner = t
		t.resourceCount.Add(1)
		m.ceilingNode.Priority = uint64(ceiling)
		t.addContribution(t.homeNode(), &m.ceilingNode, acts)
		t.held = append(t.held, m)
		n := t.homeNode()
		home.mu.Lock()
		n.sticky++
		home.mu.Unlock()
		return completedWait(t, StatusSuccessful), mrspClaimed
	case owner == t:
		return completedWait(t, StatusUnsatisfied), mrspDone
	case !wait:
		return completedWait(t, StatusUnavailable), mrspDone
	}

	t.waitMu.Lock()
	busy := t.wait.queue != nil
	t.waitMu.Unlock()
	if busy || t.cpu.Load().dispatchDisable.Load() != 0 {
		sys.Halt(FatalThreadQueueEnqueueStickyFromBadState, t, m.q.name)
	}
	if m.q.deadlocks(t) {
		return completedWait(t, StatusDeadlock), mrspDone
	}
	t.mrspWait.Priority = uint64(ceiling)
	t.addContribution(t.homeNode(), &t.mrspWait, acts)
	w, ok := m.q.enqueueLocked(t, enqueueParams{
		timeout:        timeout,
		sticky:         true,
		deadlockStatus: true,
		onTimeout: func(t *Thread, acts *prioActions) {
			t.removeContribution(t.homeNode(), &t.mrspWait, acts)
		},
	}, acts)
	if !ok {
		t.removeContribution(t.homeNode(), &t.mrspWait, acts)
		return w, mrspDone
	}
	return w, mrspWaiting
}

// Release hands m to its first waiter or frees it.
func (m *MrsP) Release(t *Thread) Status {
	var acts prioActions
	next, resume, st := m.releaseLocked(t, &acts)
	if st != StatusSuccessful {
		return st
	}
	m.sys.updatePriorities(&acts)
	t.updatePriority(stickyClean)
	if resume {
		next.resumeFromWait()
	}
	m.sys.dispatchPending()
	return StatusSuccessful
}

func (m *MrsP) releaseLocked(t *Thread, acts *prioActions) (next *Thread, resume bool, st Status) {
	sys := m.sys
	sys.pathMu.Lock()
	defer sys.pathMu.Unlock()
	m.q.mu.Lock()
	defer m.q.mu.Unlock()

	if m.q.owner != t {
		return nil, false, StatusNotOwner
	}
	if !t.popHeld(m) {
		return nil, false, StatusIncorrectState
	}
	t.removeContribution(t.homeNode(), &m.ceilingNode, acts)
	t.resourceCount.Add(-1)
	next, resume = m.q.surrenderLocked(t, acts)
	if next == nil {
		return nil, false, StatusSuccessful
	}
	// The waiter already runs at its ceiling. Swapping its wait
	// contribution for the resource ceiling keeps its priority steady.
	nh := next.Home()
	m.ceilingNode.Priority = uint64(nh.MapPriority(m.ceilings[nh.index]))
	next.replaceContribution(next.homeNode(), &next.mrspWait, &m.ceilingNode, acts)
	next.resourceCount.Add(1)
	next.held = append(next.held, m)
	return next, resume, StatusSuccessful
}

// Delete marks a free resource deleted.
func (m *MrsP) Delete() Status {
	m.sys.pathMu.Lock()
	defer m.sys.pathMu.Unlock()
	m.q.mu.Lock()
	defer m.q.mu.Unlock()
	if m.q.owner != nil {
		return StatusResourceInUse
	}
	m.deleted = true
	return StatusSuccessful
}
