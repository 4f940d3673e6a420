package kernel

import "smpcore/kernel/prio"

// prioActions collects the threads whose scheduler nodes need an update
// once all thread queue locks are released.
type prioActions struct {
	threads []*Thread
}

func (a *prioActions) add(t *Thread) {
	for _, x := range a.threads {
		if x == t {
			return
		}
	}
	a.threads = append(a.threads, t)
}

func (t *Thread) attachLocked(n *Node) {
	if !n.waiting {
		n.waiting = true
		t.waitNodes = append(t.waitNodes, n)
	}
}

func (t *Thread) detachLocked(n *Node) {
	n.waiting = false
	for i, m := range t.waitNodes {
		if m == n {
			t.waitNodes = append(t.waitNodes[:i], t.waitNodes[i+1:]...)
			return
		}
	}
}

// addContribution inserts c into the aggregation of n. Callers hold
// sys.pathMu.
func (t *Thread) addContribution(n *Node, c *prio.Node, acts *prioActions) {
	t.waitMu.Lock()
	n.contrib.Insert(c)
	attached := !n.waiting
	t.attachLocked(n)
	changed := n.publish(true) || attached
	t.waitMu.Unlock()
	acts.add(t)
	if changed {
		t.propagate(acts)
	}
}

func (t *Thread) removeContribution(n *Node, c *prio.Node, acts *prioActions) {
	t.waitMu.Lock()
	n.contrib.Extract(c)
	var changed bool
	if n.contrib.IsEmpty() {
		t.detachLocked(n)
		changed = true
	} else {
		changed = n.publish(false)
	}
	t.waitMu.Unlock()
	acts.add(t)
	if changed {
		t.propagate(acts)
	}
}

func (t *Thread) changeContribution(n *Node, c *prio.Node, p uint64, appendIt bool, acts *prioActions) {
	t.waitMu.Lock()
	n.contrib.Changed(c, p)
	changed := n.publish(appendIt)
	t.waitMu.Unlock()
	acts.add(t)
	if changed {
		t.propagate(acts)
	}
}

// replaceContribution swaps victim for replacement in one step so the
// published priority moves at most once.
func (t *Thread) replaceContribution(n *Node, victim, replacement *prio.Node, acts *prioActions) {
	t.waitMu.Lock()
	n.contrib.Replace(victim, replacement)
	changed := n.publish(false)
	t.waitMu.Unlock()
	acts.add(t)
	if changed {
		t.propagate(acts)
	}
}

// propagate repositions t in the queue it waits on, which in turn updates
// what the owner of that queue inherits.
func (t *Thread) propagate(acts *prioActions) {
	t.waitMu.Lock()
	q := t.wait.queue
	t.waitMu.Unlock()
	if q == nil {
		return
	}
	q.mu.Lock()
	t.waitMu.Lock()
	same := t.wait.queue == q
	t.waitMu.Unlock()
	if same {
		q.disc.requeue(q, t, acts)
	}
	q.mu.Unlock()
}

func (s *System) updatePriorities(acts *prioActions) {
	for _, t := range acts.threads {
		t.updatePriority(stickyKeep)
	}
	acts.threads = acts.threads[:0]
}

type stickyChange int8

const (
	stickyKeep stickyChange = iota
	// stickyMake makes the home node sticky. The caller already raised the
	// sticky level under the queue lock.
	stickyMake
	// stickyClean lowers the sticky level of the home node.
	stickyClean
)

// updatePriority brings every scheduler node of t in line with its
// published priority.
func (t *Thread) updatePriority(sticky stickyChange) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.updatePriorityLocked(sticky)
}

func (t *Thread) updatePriorityLocked(sticky stickyChange) {
	ready := t.states == StateReady
	nodes := t.processRequests()
	if sticky != stickyKeep {
		home := t.homeNode()
		s := home.sched
		s.mu.Lock()
		if sticky == stickyMake {
			s.makeSticky(t, home)
		} else {
			home.sticky--
			s.cleanSticky(t, home)
		}
		s.mu.Unlock()
	}
	for _, n := range nodes {
		s := n.sched
		s.mu.Lock()
		s.updatePriority(t, n, ready)
		s.mu.Unlock()
	}
}

// processRequests makes the scheduler nodes of t match its wait nodes and
// withdraws nodes that lost their last contribution. Called with
// t.stateMu held.
func (t *Thread) processRequests() []*Node {
	t.waitMu.Lock()
	want := append([]*Node(nil), t.waitNodes...)
	t.waitMu.Unlock()
	if pinned := t.pinnedNode.Load(); pinned != nil && !containsNode(want, pinned) {
		want = append(want, pinned)
	}

	t.schedMu.Lock()
	var removed []*Node
	for _, n := range t.schedNodes {
		if !containsNode(want, n) {
			removed = append(removed, n)
		}
	}
	t.schedNodes = want
	t.schedMu.Unlock()

	for _, n := range removed {
		n.sched.mu.Lock()
		n.sched.withdrawNode(t, n, ThreadReady)
		n.sched.mu.Unlock()
	}
	return want
}

func containsNode(nodes []*Node, n *Node) bool {
	for _, m := range nodes {
		if m == n {
			return true
		}
	}
	return false
}
