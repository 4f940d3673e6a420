package kernel

import (
	"container/list"

	"github.com/google/btree"

	"smpcore/kernel/prio"
)

type fifoDisc struct {
	order list.List
	elems map[*Thread]*list.Element
}

func newFIFODisc() *fifoDisc {
	return &fifoDisc{elems: make(map[*Thread]*list.Element)}
}

func (d *fifoDisc) enqueue(q *ThreadQueue, t *Thread, acts *prioActions) {
	d.elems[t] = d.order.PushBack(t)
}

func (d *fifoDisc) extract(q *ThreadQueue, t *Thread, acts *prioActions) {
	if e, ok := d.elems[t]; ok {
		d.order.Remove(e)
		delete(d.elems, t)
	}
}

func (d *fifoDisc) first() *Thread {
	if e := d.order.Front(); e != nil {
		return e.Value.(*Thread)
	}
	return nil
}

func (d *fifoDisc) surrender(q *ThreadQueue, previous *Thread, acts *prioActions) *Thread {
	t := d.first()
	if t != nil {
		d.extract(q, t, acts)
	}
	return t
}

func (d *fifoDisc) requeue(q *ThreadQueue, t *Thread, acts *prioActions) {}

func (d *fifoDisc) len() int { return d.order.Len() }

func (d *fifoDisc) each(fn func(t *Thread) bool) {
	for e := d.order.Front(); e != nil; e = e.Next() {
		if !fn(e.Value.(*Thread)) {
			return
		}
	}
}

// tqEntry is one wait node of a thread in a priority queue.
type tqEntry struct {
	t    *Thread
	node *Node
	prio Priority
	gen  uint64
}

func entryLess(a, b *tqEntry) bool {
	if a.prio != b.prio {
		return a.prio < b.prio
	}
	return a.gen < b.gen
}

// subQueue holds the entries of one scheduler. With inheritance, the most
// urgent entry contributes to the owner node of that scheduler.
type subQueue struct {
	sched   *Scheduler
	tree    *btree.BTreeG[*tqEntry]
	contrib prio.Node
	holder  *Node
}

type priorityDisc struct {
	inherit bool
	subs    map[*Scheduler]*subQueue
	// Non-empty sub-queues. Surrender takes from the front and rotates so
	// that every scheduler gets its turn.
	order   []*subQueue
	entries map[*Thread][]*tqEntry
	gen     uint64
}

func newPriorityDisc(inherit bool) *priorityDisc {
	return &priorityDisc{
		inherit: inherit,
		subs:    make(map[*Scheduler]*subQueue),
		entries: make(map[*Thread][]*tqEntry),
	}
}

func (d *priorityDisc) sub(s *Scheduler) *subQueue {
	sq, ok := d.subs[s]
	if !ok {
		sq = &subQueue{sched: s, tree: btree.NewG[*tqEntry](8, entryLess)}
		d.subs[s] = sq
	}
	return sq
}

func (d *priorityDisc) dropOrder(sq *subQueue) {
	for i, x := range d.order {
		if x == sq {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

func (d *priorityDisc) insertEntry(q *ThreadQueue, t *Thread, n *Node, acts *prioActions) {
	p, _ := n.insertPriority()
	sq := d.sub(n.sched)
	if sq.tree.Len() == 0 {
		d.order = append(d.order, sq)
	}
	d.gen++
	e := &tqEntry{t: t, node: n, prio: p, gen: d.gen}
	sq.tree.ReplaceOrInsert(e)
	d.entries[t] = append(d.entries[t], e)
	d.updateInherit(q, sq, acts)
}

func (d *priorityDisc) removeEntry(q *ThreadQueue, e *tqEntry, acts *prioActions) {
	sq := d.subs[e.node.sched]
	sq.tree.Delete(e)
	if sq.tree.Len() == 0 {
		d.dropOrder(sq)
	}
	d.updateInherit(q, sq, acts)
}

// updateInherit keeps the owner contribution of sq equal to its most
// urgent entry.
func (d *priorityDisc) updateInherit(q *ThreadQueue, sq *subQueue, acts *prioActions) {
	if !d.inherit {
		return
	}
	min, ok := sq.tree.Min()
	if !ok {
		if sq.holder != nil {
			sq.holder.owner.removeContribution(sq.holder, &sq.contrib, acts)
			sq.holder = nil
		}
		return
	}
	if q.owner == nil {
		return
	}
	if sq.holder == nil {
		sq.contrib.Priority = uint64(min.prio)
		sq.holder = q.owner.nodes[sq.sched.index]
		q.owner.addContribution(sq.holder, &sq.contrib, acts)
		return
	}
	if sq.contrib.Priority != uint64(min.prio) {
		sq.holder.owner.changeContribution(sq.holder, &sq.contrib, uint64(min.prio), true, acts)
	}
}

func (d *priorityDisc) waitNodes(t *Thread) []*Node {
	t.waitMu.Lock()
	defer t.waitMu.Unlock()
	return append([]*Node(nil), t.waitNodes...)
}

func (d *priorityDisc) enqueue(q *ThreadQueue, t *Thread, acts *prioActions) {
	for _, n := range d.waitNodes(t) {
		d.insertEntry(q, t, n, acts)
	}
}

func (d *priorityDisc) extract(q *ThreadQueue, t *Thread, acts *prioActions) {
	old := d.entries[t]
	delete(d.entries, t)
	for _, e := range old {
		d.removeEntry(q, e, acts)
	}
}

func (d *priorityDisc) first() *Thread {
	if len(d.order) == 0 {
		return nil
	}
	e, _ := d.order[0].tree.Min()
	return e.t
}

func (d *priorityDisc) surrender(q *ThreadQueue, previous *Thread, acts *prioActions) *Thread {
	next := d.first()
	if next == nil {
		return nil
	}
	if len(d.order) > 1 {
		head := d.order[0]
		copy(d.order, d.order[1:])
		d.order[len(d.order)-1] = head
	}
	if d.inherit {
		for _, sq := range d.order {
			if sq.holder != nil {
				sq.holder.owner.removeContribution(sq.holder, &sq.contrib, acts)
				sq.holder = nil
			}
		}
	}
	q.owner = next
	d.extract(q, next, acts)
	for _, sq := range d.order {
		d.updateInherit(q, sq, acts)
	}
	return next
}

// requeue brings the entries of t in line with its wait nodes. Nodes may
// have changed priority, been added, or been removed.
func (d *priorityDisc) requeue(q *ThreadQueue, t *Thread, acts *prioActions) {
	nodes := d.waitNodes(t)
	old := d.entries[t]
	keep := old[:0:0]
	for _, e := range old {
		if !containsNode(nodes, e.node) {
			d.removeEntry(q, e, acts)
			continue
		}
		if p, _ := e.node.insertPriority(); p != e.prio {
			sq := d.subs[e.node.sched]
			sq.tree.Delete(e)
			d.gen++
			e.prio = p
			e.gen = d.gen
			sq.tree.ReplaceOrInsert(e)
			d.updateInherit(q, sq, acts)
		}
		keep = append(keep, e)
	}
	d.entries[t] = keep
	for _, n := range nodes {
		found := false
		for _, e := range keep {
			if e.node == n {
				found = true
				break
			}
		}
		if !found {
			d.insertEntry(q, t, n, acts)
		}
	}
}

func (d *priorityDisc) len() int { return len(d.entries) }

func (d *priorityDisc) each(fn func(t *Thread) bool) {
	seen := make(map[*Thread]bool)
	for _, sq := range d.order {
		cont := true
		sq.tree.Ascend(func(e *tqEntry) bool {
			if seen[e.t] {
				return true
			}
			seen[e.t] = true
			cont = fn(e.t)
			return cont
		})
		if !cont {
			return
		}
	}
}
