package kernel

import (
	"container/list"
	"sync/atomic"

	"smpcore/kernel/prio"
)

// NodeState is the state of a scheduler node within its scheduler.
type NodeState uint8

const (
	NodeBlocked NodeState = iota
	NodeScheduled
	NodeReady
)

func (s NodeState) String() string {
	switch s {
	case NodeBlocked:
		return "blocked"
	case NodeScheduled:
		return "scheduled"
	case NodeReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Node is the scheduling record of one thread on one scheduler.
type Node struct {
	owner *Thread
	sched *Scheduler

	// Guarded by sched.mu.
	user     *Thread // owner, or the idle thread running on its behalf
	idle     *Thread
	state    NodeState
	priority Priority
	gen      int64
	sticky   int
	rqi      int
	// Ready queue index selected by the affinity; rqi differs while pinned.
	affinityRQI int
	pinned      bool
	elem        *list.Element
	level       int

	// Guarded by owner.waitMu.
	contrib prio.Aggregation
	waiting bool

	// Aggregate of contrib published for the scheduler: the mapped
	// priority shifted left by one, with the low bit set when the node
	// should be appended to its priority group.
	published atomic.Uint64
}

func newNode(owner *Thread, sched *Scheduler) *Node {
	return &Node{owner: owner, sched: sched, user: owner}
}

func (n *Node) Owner() *Thread        { return n.owner }
func (n *Node) Scheduler() *Scheduler { return n.sched }

// State returns the node state.
func (n *Node) State() NodeState {
	n.sched.mu.Lock()
	defer n.sched.mu.Unlock()
	return n.state
}

// User returns the thread that executes when the node is scheduled.
func (n *Node) User() *Thread {
	n.sched.mu.Lock()
	defer n.sched.mu.Unlock()
	return n.user
}

// StickyLevel returns the sticky level of the node.
func (n *Node) StickyLevel() int {
	n.sched.mu.Lock()
	defer n.sched.mu.Unlock()
	return n.sticky
}

// Priority returns the published aggregate priority, unmapped.
func (n *Node) Priority() Priority {
	p, _ := n.insertPriority()
	return n.sched.UnmapPriority(p)
}

func (n *Node) insertPriority() (p Priority, appendIt bool) {
	v := n.published.Load()
	return Priority(v >> 1), v&1 != 0
}

// publish stores the aggregate of contrib. Called with owner.waitMu held.
// It reports whether the published priority changed.
func (n *Node) publish(appendIt bool) bool {
	p, ok := n.contrib.Priority()
	if !ok {
		return false
	}
	v := p << 1
	if appendIt {
		v |= 1
	}
	old := n.published.Swap(v)
	return old>>1 != v>>1
}

func nodeLessEqual(n, other *Node) bool {
	if n.priority != other.priority {
		return n.priority < other.priority
	}
	return n.gen <= other.gen
}
