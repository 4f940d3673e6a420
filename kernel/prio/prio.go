// Package prio aggregates priority contributions.
//
// A lower value is more urgent. The aggregate priority of an Aggregation is
// the minimum of its contributions; contributions with equal values are
// ordered by insertion so the earliest one is reported by Min.
package prio

import "github.com/google/btree"

// Node is one priority contribution. A Node belongs to at most one
// Aggregation at a time.
type Node struct {
	Priority uint64

	gen uint64
	agg *Aggregation
}

// Active reports whether the node currently contributes to an aggregation.
func (n *Node) Active() bool { return n.agg != nil }

// Aggregation is an ordered multiset of contributions. The zero value is
// empty and ready to use. It is not safe for concurrent use.
type Aggregation struct {
	tree *btree.BTreeG[*Node]
	gen  uint64
}

func less(a, b *Node) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.gen < b.gen
}

func (a *Aggregation) lazyInit() {
	if a.tree == nil {
		a.tree = btree.NewG[*Node](8, less)
	}
}

// Insert adds n with its current Priority.
func (a *Aggregation) Insert(n *Node) {
	if n.agg != nil {
		panic("prio: node already aggregated")
	}
	a.lazyInit()
	a.gen++
	n.gen = a.gen
	n.agg = a
	a.tree.ReplaceOrInsert(n)
}

// InsertValue sets n.Priority to p and inserts it.
func (a *Aggregation) InsertValue(n *Node, p uint64) {
	n.Priority = p
	a.Insert(n)
}

// Extract removes n. Extracting a node of another aggregation panics.
func (a *Aggregation) Extract(n *Node) {
	if n.agg != a {
		panic("prio: node not in aggregation")
	}
	a.tree.Delete(n)
	n.agg = nil
}

// Changed moves n to priority p. The node keeps its insertion order among
// contributions of equal value.
func (a *Aggregation) Changed(n *Node, p uint64) {
	if n.agg != a {
		panic("prio: node not in aggregation")
	}
	a.tree.Delete(n)
	n.Priority = p
	a.tree.ReplaceOrInsert(n)
}

// Replace swaps victim for replacement in one step. The replacement keeps
// its own Priority and inherits the insertion order of the victim.
func (a *Aggregation) Replace(victim, replacement *Node) {
	if victim.agg != a {
		panic("prio: victim not in aggregation")
	}
	if replacement.agg != nil {
		panic("prio: replacement already aggregated")
	}
	a.tree.Delete(victim)
	victim.agg = nil
	replacement.gen = victim.gen
	replacement.agg = a
	a.tree.ReplaceOrInsert(replacement)
}

// Min returns the most urgent contribution, or nil.
func (a *Aggregation) Min() *Node {
	if a.tree == nil {
		return nil
	}
	n, ok := a.tree.Min()
	if !ok {
		return nil
	}
	return n
}

// Priority returns the aggregate priority. ok is false when empty.
func (a *Aggregation) Priority() (p uint64, ok bool) {
	n := a.Min()
	if n == nil {
		return 0, false
	}
	return n.Priority, true
}

func (a *Aggregation) IsEmpty() bool { return a.Len() == 0 }

func (a *Aggregation) Len() int {
	if a.tree == nil {
		return 0
	}
	return a.tree.Len()
}

// Each visits contributions from most to least urgent until fn returns false.
func (a *Aggregation) Each(fn func(n *Node) bool) {
	if a.tree == nil {
		return
	}
	a.tree.Ascend(btree.ItemIteratorG[*Node](fn))
}
