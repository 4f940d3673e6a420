// Package cpuset implements fixed-width processor sets.
package cpuset

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxProcessors is the number of processors a Set can describe.
const MaxProcessors = 64

// Set is a set of processor indices.
type Set uint64

// Of returns the set containing the given indices. Indices outside
// [0, MaxProcessors) are ignored.
func Of(indices ...int) Set {
	var s Set
	for _, i := range indices {
		s = s.Add(i)
	}
	return s
}

// All returns the set {0, 1, ..., n-1}.
func All(n int) Set {
	if n <= 0 {
		return 0
	}
	if n >= MaxProcessors {
		return ^Set(0)
	}
	return Set(1)<<uint(n) - 1
}

func (s Set) Add(i int) Set {
	if i < 0 || i >= MaxProcessors {
		return s
	}
	return s | Set(1)<<uint(i)
}

func (s Set) Remove(i int) Set {
	if i < 0 || i >= MaxProcessors {
		return s
	}
	return s &^ (Set(1) << uint(i))
}

func (s Set) Has(i int) bool {
	if i < 0 || i >= MaxProcessors {
		return false
	}
	return s&(Set(1)<<uint(i)) != 0
}

func (s Set) And(o Set) Set    { return s & o }
func (s Set) Or(o Set) Set     { return s | o }
func (s Set) AndNot(o Set) Set { return s &^ o }
func (s Set) Equal(o Set) bool { return s == o }
func (s Set) IsZero() bool     { return s == 0 }
func (s Set) Count() int       { return bits.OnesCount64(uint64(s)) }

// IsSubsetOf reports whether every member of s is a member of o.
func (s Set) IsSubsetOf(o Set) bool { return s&^o == 0 }

// First returns the lowest member, or -1 for the empty set.
func (s Set) First() int {
	if s == 0 {
		return -1
	}
	return bits.TrailingZeros64(uint64(s))
}

// Last returns the highest member, or -1 for the empty set.
func (s Set) Last() int {
	if s == 0 {
		return -1
	}
	return bits.Len64(uint64(s)) - 1
}

// Each calls fn for every member in ascending order.
func (s Set) Each(fn func(i int)) {
	for s != 0 {
		i := bits.TrailingZeros64(uint64(s))
		fn(i)
		s &^= Set(1) << uint(i)
	}
}

// String renders the set as "{0,2,3}".
func (s Set) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	s.Each(func(i int) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Itoa(i))
	})
	b.WriteByte('}')
	return b.String()
}

// FromBytes decodes a little-endian processor bit buffer of size bytes, as
// used by the directive surface. max is the number of configured processors;
// the second result reports whether the buffer names a processor at or above
// max. Bytes beyond len(buf) are treated as zero.
func FromBytes(size int, buf []byte, max int) (Set, bool) {
	var s Set
	overflow := false
	if size > len(buf) {
		size = len(buf)
	}
	for i := 0; i < size; i++ {
		b := buf[i]
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			idx := i*8 + bit
			if idx >= max || idx >= MaxProcessors {
				overflow = true
				continue
			}
			s = s.Add(idx)
		}
	}
	return s, overflow
}

// Bytes encodes the set into a buffer of size bytes. Members that do not fit
// are dropped; the second result reports whether that happened.
func (s Set) Bytes(size int) ([]byte, bool) {
	if size < 0 {
		size = 0
	}
	buf := make([]byte, size)
	truncated := false
	s.Each(func(i int) {
		if i/8 >= size {
			truncated = true
			return
		}
		buf[i/8] |= 1 << uint(i%8)
	})
	return buf, truncated
}
