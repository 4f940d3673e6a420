package kernel

import (
	"container/list"
	"math/bits"
)

// fpReady is the fixed-priority ready structure: one FIFO per priority
// level and a two-level bitmap of the non-empty levels.
type fpReady struct {
	levels  []list.List
	words   []uint64
	summary uint64
}

// maxFPLevels is the number of levels the two-level bitmap can index.
const maxFPLevels = 64 * 64

func newFPReady(levels int) *fpReady {
	r := &fpReady{
		levels: make([]list.List, levels),
		words:  make([]uint64, (levels+63)/64),
	}
	for i := range r.levels {
		r.levels[i].Init()
	}
	return r
}

func (r *fpReady) insert(n *Node, appendIt bool) {
	lvl := int(n.priority)
	if lvl >= len(r.levels) {
		lvl = len(r.levels) - 1
	}
	n.level = lvl
	if appendIt {
		n.elem = r.levels[lvl].PushBack(n)
	} else {
		n.elem = r.levels[lvl].PushFront(n)
	}
	w := lvl / 64
	r.words[w] |= 1 << uint(lvl%64)
	r.summary |= 1 << uint(w)
}

func (r *fpReady) extract(n *Node) {
	if n.elem == nil {
		return
	}
	lvl := n.level
	r.levels[lvl].Remove(n.elem)
	n.elem = nil
	if r.levels[lvl].Len() == 0 {
		w := lvl / 64
		r.words[w] &^= 1 << uint(lvl%64)
		if r.words[w] == 0 {
			r.summary &^= 1 << uint(w)
		}
	}
}

func (r *fpReady) first() *Node {
	if r.summary == 0 {
		return nil
	}
	w := bits.TrailingZeros64(r.summary)
	lvl := w*64 + bits.TrailingZeros64(r.words[w])
	return r.levels[lvl].Front().Value.(*Node)
}

func (r *fpReady) last() *Node {
	if r.summary == 0 {
		return nil
	}
	w := bits.Len64(r.summary) - 1
	lvl := w*64 + bits.Len64(r.words[w]) - 1
	return r.levels[lvl].Back().Value.(*Node)
}

func (r *fpReady) empty() bool { return r.summary == 0 }
