package cache

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("LRU", func() {
	AfterEach(func() {
		// Nothing global to reset; each It creates its own store.
	})

	It("rejects an oversize entry on Put", func() {
		l := NewLRU(10)
		Expect(l.Put([]byte("toolongkey"), []byte("toolongvalue"))).To(BeFalse())
		Expect(l.Len()).To(Equal(0))
		expectInvariantsOk(l)
	})

	It("evicts the least-recently-used entry to make room", func() {
		l := NewLRU(10)
		Expect(l.Put([]byte("a"), []byte("1"))).To(BeTrue())
		Expect(l.Put([]byte("bb"), []byte("22"))).To(BeTrue())
		Expect(l.Put([]byte("ccc"), []byte("333"))).To(BeTrue())

		_, ok := l.Get([]byte("a"))
		Expect(ok).To(BeFalse())

		v, ok := l.Get([]byte("bb"))
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal([]byte("22")))

		v, ok = l.Get([]byte("ccc"))
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal([]byte("333")))

		expectInvariantsOk(l)
	})

	It("promotes on Get, keeping recency order", func() {
		l := NewLRU(6)
		Expect(l.Put([]byte("a"), []byte("1"))).To(BeTrue())
		Expect(l.Put([]byte("b"), []byte("2"))).To(BeTrue())
		Expect(l.Put([]byte("c"), []byte("3"))).To(BeTrue())

		_, ok := l.Get([]byte("a"))
		Expect(ok).To(BeTrue())

		Expect(l.Put([]byte("d"), []byte("4"))).To(BeTrue())

		// "b" was LRU after "a" was promoted, so it is the one evicted.
		_, ok = l.Get([]byte("b"))
		Expect(ok).To(BeFalse())

		for _, k := range []string{"d", "a", "c"} {
			_, ok := l.Get([]byte(k))
			Expect(ok).To(BeTrue())
		}
		expectInvariantsOk(l)
	})

	It("round-trips Put then Get", func() {
		l := NewLRU(1024)
		Expect(l.Put([]byte("k"), []byte("v"))).To(BeTrue())
		v, ok := l.Get([]byte("k"))
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal([]byte("v")))
		expectInvariantsOk(l)
	})

	It("Set after Put changes the stored value and returns true", func() {
		l := NewLRU(1024)
		l.Put([]byte("k"), []byte("v1"))
		Expect(l.Set([]byte("k"), []byte("v2"))).To(BeTrue())
		v, _ := l.Get([]byte("k"))
		Expect(v).To(Equal([]byte("v2")))
	})

	It("Set on an absent key returns false", func() {
		l := NewLRU(1024)
		Expect(l.Set([]byte("missing"), []byte("v"))).To(BeFalse())
	})

	It("PutIfAbsent does not overwrite an existing value", func() {
		l := NewLRU(1024)
		Expect(l.PutIfAbsent([]byte("k"), []byte("v1"))).To(BeTrue())
		Expect(l.PutIfAbsent([]byte("k"), []byte("v2"))).To(BeFalse())
		v, _ := l.Get([]byte("k"))
		Expect(v).To(Equal([]byte("v1")))
	})

	It("PutIfAbsent does not promote on hit", func() {
		l := NewLRU(6)
		l.PutIfAbsent([]byte("a"), []byte("1"))
		l.PutIfAbsent([]byte("b"), []byte("2"))
		l.PutIfAbsent([]byte("c"), []byte("3"))
		// "a" is LRU; a hit-but-absent PutIfAbsent must not promote it.
		l.PutIfAbsent([]byte("a"), []byte("9"))
		l.Put([]byte("d"), []byte("4"))
		_, ok := l.Get([]byte("a"))
		Expect(ok).To(BeFalse(), "a should have been evicted, PutIfAbsent must not promote on hit")
	})

	It("Delete then Get returns false, and a second Delete returns false", func() {
		l := NewLRU(1024)
		l.Put([]byte("k"), []byte("v"))
		Expect(l.Delete([]byte("k"))).To(BeTrue())
		_, ok := l.Get([]byte("k"))
		Expect(ok).To(BeFalse())
		Expect(l.Delete([]byte("k"))).To(BeFalse())
		expectInvariantsOk(l)
	})

	It("grows a value on Set without evicting others while the total still fits", func() {
		l := NewLRU(10)
		l.Put([]byte("a"), []byte("1"))  // 2 bytes
		l.Put([]byte("bb"), []byte("2")) // 3 bytes, total 5
		// Growing "bb" to 6 bytes of value makes it 8 bytes, total 10: still fits without evicting "a".
		Expect(l.Set([]byte("bb"), []byte("222222"))).To(BeTrue())
		_, ok := l.Get([]byte("a"))
		Expect(ok).To(BeTrue())
		v, _ := l.Get([]byte("bb"))
		Expect(v).To(Equal([]byte("222222")))
	})

	It("rejects a Set that alone would exceed capacity, leaving the old value", func() {
		l := NewLRU(6)
		l.Put([]byte("k"), []byte("v"))
		Expect(l.Set([]byte("k"), []byte("toolongvalue"))).To(BeFalse())
		v, ok := l.Get([]byte("k"))
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal([]byte("v")))
	})

	It("calls OnEvict for both capacity-driven reclamation and explicit Delete", func() {
		l := NewLRU(10)
		mc := &mockEvictCallback{}
		l.OnEvict = mc.Evict
		mc.On("Evict", "a", []byte("1")).Once()
		mc.On("Evict", "bb", []byte("22")).Once()

		Expect(l.Put([]byte("a"), []byte("1"))).To(BeTrue())
		Expect(l.Put([]byte("bb"), []byte("22"))).To(BeTrue())
		Expect(l.Put([]byte("ccc"), []byte("333"))).To(BeTrue()) // evicts "a"
		Expect(l.Delete([]byte("bb"))).To(BeTrue())

		mc.AssertExpectations(GinkgoT())
	})

	It("reuses freed handles across repeated insert/evict cycles", func() {
		l := NewLRU(4)
		for i := 0; i < 100; i++ {
			l.Put([]byte("a"), []byte("11"))
			l.Put([]byte("b"), []byte("22"))
		}
		expectInvariantsOk(l)
	})
})
