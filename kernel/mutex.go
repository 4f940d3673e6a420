package kernel

import "smpcore/kernel/prio"

// Protocol selects how a mutex boosts its owner.
type Protocol uint8

const (
	ProtocolNone Protocol = iota
	ProtocolInherit
	ProtocolCeiling
)

func (p Protocol) String() string {
	switch p {
	case ProtocolNone:
		return "none"
	case ProtocolInherit:
		return "inherit"
	case ProtocolCeiling:
		return "ceiling"
	default:
		return "unknown"
	}
}

// MutexOptions configures NewMutex.
type MutexOptions struct {
	Name     string
	Protocol Protocol
	// FIFO orders waiters by arrival. Only valid without a protocol.
	FIFO bool
	// Scheduler of the ceiling; nil selects the first scheduler.
	Scheduler *Scheduler
	Ceiling   Priority
}

// Mutex is a recursive owner lock.
type Mutex struct {
	sys      *System
	protocol Protocol
	sched    *Scheduler
	q        *ThreadQueue

	// Guarded by sys.pathMu.
	nest        int
	ceiling     Priority
	ceilingNode prio.Node
	deleted     bool
}

func (s *System) NewMutex(opts MutexOptions) (*Mutex, Status) {
	sched := opts.Scheduler
	if sched == nil {
		sched = s.schedulers[0]
	}
	if opts.Protocol == ProtocolCeiling && !sched.ValidPriority(opts.Ceiling) {
		return nil, StatusInvalidPriority
	}
	d := DisciplinePriority
	switch {
	case opts.Protocol == ProtocolInherit:
		d = DisciplinePriorityInherit
	case opts.Protocol == ProtocolNone && opts.FIFO:
		d = DisciplineFIFO
	}
	return &Mutex{
		sys:      s,
		protocol: opts.Protocol,
		sched:    sched,
		q:        newThreadQueue(s, opts.Name, d, true),
		ceiling:  opts.Ceiling,
	}, StatusSuccessful
}

func (m *Mutex) Name() string        { return m.q.name }
func (m *Mutex) Protocol() Protocol  { return m.protocol }
func (m *Mutex) Queue() *ThreadQueue { return m.q }
func (m *Mutex) Owner() *Thread      { return m.q.Owner() }

// Ceiling returns the ceiling priority and its scheduler.
func (m *Mutex) Ceiling() (Priority, *Scheduler) {
	m.sys.pathMu.Lock()
	defer m.sys.pathMu.Unlock()
	return m.ceiling, m.sched
}

// checkCeiling rejects threads of another scheduler and threads more
// urgent than the ceiling.
func (m *Mutex) checkCeiling(t *Thread) Status {
	if t.Home() != m.sched {
		return StatusNotDefined
	}
	if p, _ := t.homeNode().insertPriority(); p < m.sched.MapPriority(m.ceiling) {
		return StatusInvalidPriority
	}
	return StatusSuccessful
}

func (m *Mutex) claim(t *Thread, acts *prioActions) {
	m.q.owner = t
	m.nest = 1
	t.resourceCount.Add(1)
	if m.protocol == ProtocolCeiling {
		m.ceilingNode.Priority = uint64(m.sched.MapPriority(m.ceiling))
		t.addContribution(t.homeNode(), &m.ceilingNode, acts)
		t.held = append(t.held, m)
	}
}

// Obtain acquires m for t. Without wait, a busy mutex completes the wait
// with StatusUnavailable. A zero timeout waits forever.
func (m *Mutex) Obtain(t *Thread, wait bool, timeout uint64) *Wait {
	var acts prioActions
	w, blocked := m.obtainLocked(t, wait, timeout, &acts)
	if blocked {
		m.q.block(t, false, &acts)
	} else {
		m.sys.updatePriorities(&acts)
	}
	m.sys.dispatchPending()
	return w
}

func (m *Mutex) obtainLocked(t *Thread, wait bool, timeout uint64, acts *prioActions) (*Wait, bool) {
	sys := m.sys
	sys.pathMu.Lock()
	defer sys.pathMu.Unlock()
	m.q.mu.Lock()
	defer m.q.mu.Unlock()

	if m.deleted {
		return completedWait(t, StatusObjectWasDeleted), false
	}
	switch owner := m.q.owner; {
	case owner == nil:
		if m.protocol == ProtocolCeiling {
			if st := m.checkCeiling(t); st != StatusSuccessful {
				return completedWait(t, st), false
			}
		}
		m.claim(t, acts)
		return completedWait(t, StatusSuccessful), false
	case owner == t:
		m.nest++
		return completedWait(t, StatusSuccessful), false
	case !wait:
		return completedWait(t, StatusUnavailable), false
	}
	return m.q.enqueueLocked(t, enqueueParams{timeout: timeout}, acts)
}

// Release gives up one level of ownership. The last level hands the
// mutex to the first waiter.
func (m *Mutex) Release(t *Thread) Status {
	var acts prioActions
	next, resume, st := m.releaseLocked(t, &acts)
	if st != StatusSuccessful {
		return st
	}
	m.sys.updatePriorities(&acts)
	if resume {
		next.resumeFromWait()
	}
	m.sys.dispatchPending()
	return StatusSuccessful
}

func (m *Mutex) releaseLocked(t *Thread, acts *prioActions) (next *Thread, resume bool, st Status) {
	sys := m.sys
	sys.pathMu.Lock()
	defer sys.pathMu.Unlock()
	m.q.mu.Lock()
	defer m.q.mu.Unlock()

	if m.q.owner != t {
		return nil, false, StatusNotOwner
	}
	if m.nest > 1 {
		m.nest--
		return nil, false, StatusSuccessful
	}
	if m.protocol == ProtocolCeiling {
		if !t.popHeld(m) {
			return nil, false, StatusIncorrectState
		}
		t.removeContribution(t.homeNode(), &m.ceilingNode, acts)
	}
	m.nest = 0
	t.resourceCount.Add(-1)
	next, resume = m.q.surrenderLocked(t, acts)
	if next != nil {
		m.nest = 1
		next.resourceCount.Add(1)
		if m.protocol == ProtocolCeiling {
			m.ceilingNode.Priority = uint64(m.sched.MapPriority(m.ceiling))
			next.addContribution(next.homeNode(), &m.ceilingNode, acts)
			next.held = append(next.held, m)
		}
	}
	return next, resume, StatusSuccessful
}

// SetCeiling replaces the ceiling priority on s and returns the old one.
// A zero priority only returns the current ceiling.
func (m *Mutex) SetCeiling(s *Scheduler, p Priority) (old Priority, st Status) {
	sys := m.sys
	var acts prioActions
	sys.pathMu.Lock()
	m.q.mu.Lock()
	switch {
	case m.protocol != ProtocolCeiling || s != m.sched:
		st = StatusNotDefined
	case p != 0 && !s.ValidPriority(p):
		old, st = m.ceiling, StatusInvalidPriority
	default:
		old, st = m.ceiling, StatusSuccessful
		if p != 0 {
			m.ceiling = p
			if owner := m.q.owner; owner != nil {
				owner.changeContribution(owner.homeNode(), &m.ceilingNode, uint64(s.MapPriority(p)), false, &acts)
			}
		}
	}
	m.q.mu.Unlock()
	sys.pathMu.Unlock()
	sys.updatePriorities(&acts)
	sys.dispatchPending()
	return old, st
}

// Flush ends the wait of up to limit waiters with StatusUnsatisfied, all
// of them when limit <= 0. The owner keeps the mutex and loses what it
// inherited from the flushed waiters.
func (m *Mutex) Flush(limit int) int {
	sys := m.sys
	var acts prioActions
	sys.pathMu.Lock()
	m.q.mu.Lock()
	resume, n := m.q.flushLocked(StatusUnsatisfied, limit, &acts)
	m.q.mu.Unlock()
	sys.pathMu.Unlock()
	sys.updatePriorities(&acts)
	for _, t := range resume {
		t.resumeFromWait()
	}
	sys.dispatchPending()
	return n
}

// Delete marks m deleted. A mutex with an owner cannot be deleted.
func (m *Mutex) Delete() Status {
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

// popHeld removes r from the top of the held resources. Called with
// sys.pathMu held.
func (t *Thread) popHeld(r any) bool {
	if len(t.held) == 0 || t.held[len(t.held)-1] != r {
		return false
	}
	t.held[len(t.held)-1] = nil
	t.held = t.held[:len(t.held)-1]
	return true
}
