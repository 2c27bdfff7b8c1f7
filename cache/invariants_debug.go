//go:build debug

// Gomega should not be a dependency in non-debug build.

package cache

import (
	"errors"
	"log"

	"github.com/facebookgo/stackerr"
	. "github.com/onsi/gomega"
)

var _ = func() (_ struct{}) {
	RegisterFailHandler(GomegaFailHandler)
	return
}()

func GomegaFailHandler(message string, callerSkip ...int) {
	skip := 1
	if len(callerSkip) > 0 {
		skip = callerSkip[0] + 1
	}
	log.Fatal("FATAL: invariants are broken: ", stackerr.WrapSkip(errors.New(message), skip))
}

// checkInvariants walks the recency list and re-derives every invariant
// checks sentinel endpoints, mutual prev/next agreement,
// curBytes bookkeeping, and index<->list one-to-one correspondence.
func (l *LRU) checkInvariants() {
	Expect(l.entries[headHandle].prev).To(Equal(nilHandle))
	Expect(l.entries[tailHandle].next).To(Equal(nilHandle))

	var size int64
	var live int
	for h := l.entries[headHandle].next; h != tailHandle; h = l.entries[h].next {
		e := l.entries[h]
		size += e.size()
		live++
		Expect(l.entries[e.prev].next).To(Equal(h))
		Expect(l.entries[e.next].prev).To(Equal(h))
		idxH, ok := l.index[e.key]
		Expect(ok).To(BeTrue(), "no index entry for %q", e.key)
		Expect(idxH).To(Equal(h), "index entry for %q points elsewhere", e.key)
	}
	Expect(size).To(Equal(l.curBytes))
	Expect(live).To(Equal(len(l.index)))
	Expect(l.curBytes).To(BeNumerically("<=", l.maxBytes))
}
