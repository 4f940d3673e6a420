package kernel

import "github.com/google/btree"

// edfReady orders nodes by deadline (or background priority), then by
// generation.
type edfReady struct {
	tree *btree.BTreeG[*Node]
}

func newEDFReady() *edfReady {
	return &edfReady{tree: btree.NewG[*Node](8, nodeLess)}
}

func nodeLess(a, b *Node) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.gen < b.gen
}

func (r *edfReady) insert(n *Node, _ bool) { r.tree.ReplaceOrInsert(n) }
func (r *edfReady) extract(n *Node)       { r.tree.Delete(n) }

func (r *edfReady) first() *Node {
	n, _ := r.tree.Min()
	return n
}

func (r *edfReady) last() *Node {
	n, _ := r.tree.Max()
	return n
}

func (r *edfReady) empty() bool { return r.tree.Len() == 0 }
