package cache

import (
	. "github.com/onsi/gomega"
)

// expectInvariantsOk re-derives the LRU invariants directly, independent
// of the -tags debug build used for checkInvariants' inline hot-path
// assertions. Used from tests so invariants are always exercised regardless
// of build tags.
func expectInvariantsOk(l *LRU) {
	ExpectWithOffset(1, l.entries[headHandle].prev).To(Equal(nilHandle))
	ExpectWithOffset(1, l.entries[tailHandle].next).To(Equal(nilHandle))

	var size int64
	var live int
	for h := l.entries[headHandle].next; h != tailHandle; h = l.entries[h].next {
		e := l.entries[h]
		size += e.size()
		live++
		ExpectWithOffset(1, l.entries[e.prev].next).To(Equal(h))
		ExpectWithOffset(1, l.entries[e.next].prev).To(Equal(h))
		idxH, ok := l.index[e.key]
		ExpectWithOffset(1, ok).To(BeTrue(), "no index entry for %q", e.key)
		ExpectWithOffset(1, idxH).To(Equal(h), "index entry for %q points elsewhere", e.key)
	}
	ExpectWithOffset(1, size).To(Equal(l.curBytes))
	ExpectWithOffset(1, live).To(Equal(len(l.index)))
	ExpectWithOffset(1, l.curBytes).To(BeNumerically("<=", l.maxBytes))
}
