package kernel

import "strings"

// LifeState is a set of reasons a thread cannot run.
type LifeState uint32

const (
	StateDormant LifeState = 1 << iota
	StateSuspended
	StateWaitingForObject
	StateDelaying
)

// StateReady is the empty set.
const StateReady LifeState = 0

func (s LifeState) String() string {
	if s == StateReady {
		return "ready"
	}
	var parts []string
	if s&StateDormant != 0 {
		parts = append(parts, "dormant")
	}
	if s&StateSuspended != 0 {
		parts = append(parts, "suspended")
	}
	if s&StateWaitingForObject != 0 {
		parts = append(parts, "waiting")
	}
	if s&StateDelaying != 0 {
		parts = append(parts, "delaying")
	}
	return strings.Join(parts, "|")
}

// ThreadSchedState says whether a thread runs on some processor.
type ThreadSchedState uint8

const (
	ThreadBlocked ThreadSchedState = iota
	ThreadReady
	ThreadScheduled
)

func (s ThreadSchedState) String() string {
	switch s {
	case ThreadBlocked:
		return "blocked"
	case ThreadReady:
		return "ready"
	case ThreadScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// setState adds states and blocks the thread when it was ready.
func (t *Thread) setState(add LifeState) LifeState {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	old := t.states
	t.states |= add
	if old == StateReady && t.states != StateReady {
		t.blockLocked()
	}
	return old
}

// clearState removes states and unblocks the thread when it becomes ready.
func (t *Thread) clearState(clear LifeState) LifeState {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	old := t.states
	t.states &^= clear
	if old != StateReady && t.states == StateReady {
		t.unblockLocked()
	}
	return old
}

// States returns the life states of the thread.
func (t *Thread) States() LifeState {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.states
}

// blockLocked removes the thread from every scheduler. Called with
// t.stateMu held.
func (t *Thread) blockLocked() {
	primary := t.mainNode()
	s := primary.sched
	s.mu.Lock()
	s.block(t, primary)
	s.mu.Unlock()

	t.schedMu.Lock()
	others := make([]*Node, 0, len(t.schedNodes))
	for _, n := range t.schedNodes {
		if n != primary {
			others = append(others, n)
		}
	}
	t.schedMu.Unlock()
	for _, n := range others {
		n.sched.mu.Lock()
		n.sched.withdrawNode(t, n, ThreadBlocked)
		n.sched.mu.Unlock()
	}
}

func (t *Thread) unblockLocked() {
	primary := t.mainNode()
	s := primary.sched
	s.mu.Lock()
	s.unblock(t, primary)
	s.mu.Unlock()
}
