package cache

// Storage is the contract commands execute against: five synchronous,
// boolean-returning operations. No operation ever reports an asynchronous
// error; running out of capacity is handled by eviction, not by failure.
type Storage interface {
	// Put inserts or replaces key's value, evicting least-recently-used
	// entries to make room. Returns false only if key+value alone is
	// larger than the store's capacity.
	Put(key, value []byte) bool
	// PutIfAbsent inserts key only if it is not already present. Does not
	// promote or otherwise touch an existing entry.
	PutIfAbsent(key, value []byte) bool
	// Set replaces the value of an existing key, promoting it to
	// most-recently-used. Returns false if key is absent, or if the new
	// value alone (with key) would exceed capacity.
	Set(key, value []byte) bool
	// Delete removes key. Returns false if it was absent.
	Delete(key []byte) bool
	// Get returns key's value and promotes it to most-recently-used.
	Get(key []byte) (value []byte, ok bool)
}

// handle is a stable reference to a node in the arena below. Unlike a
// pointer into the node it never dangles across a slice grow, and unlike a
// pointer used as an index.Map key, storing it in the key->handle index
// never aliases memory owned by the recency list.
type handle int32

const nilHandle handle = -1

// head and tail are fake nodes: head.next is the most-recently-used real
// entry, tail.prev the least-recently-used. Keeping them present at fixed
// handles removes every nil check from link/unlink code.
const (
	headHandle handle = 0
	tailHandle handle = 1
)

type entry struct {
	key   string
	value []byte
	prev  handle
	next  handle
}

func (e *entry) size() int64 { return int64(len(e.key) + len(e.value)) }

// LRU is a bounded key/value store with least-recently-used eviction. It
// implements Storage but is not safe for concurrent use; see SyncLRU.
type LRU struct {
	maxBytes int64
	curBytes int64
	entries  []entry
	free     []handle
	index    map[string]handle

	// OnEvict, if set, is called synchronously whenever an entry leaves the
	// store, whether through capacity-driven reclamation or an explicit
	// Delete. The evicted entry is already unlinked and out of the index
	// when it runs. When the eviction makes room for a Put or Set that grows
	// an existing value, that entry is detached from the recency list and
	// not yet re-linked while OnEvict runs, so l is not consistent for a
	// call back into it at that point.
	OnEvict func(key string, value []byte)
}

var _ Storage = (*LRU)(nil)

// NewLRU creates an LRU that admits at most maxBytes total of key+value
// bytes across all live entries.
func NewLRU(maxBytes int64) *LRU {
	l := &LRU{
		maxBytes: maxBytes,
		entries:  make([]entry, 2, 16),
		index:    make(map[string]handle),
	}
	l.entries[headHandle] = entry{prev: nilHandle, next: tailHandle}
	l.entries[tailHandle] = entry{prev: headHandle, next: nilHandle}
	return l
}

func (l *LRU) Put(key, value []byte) bool {
	defer l.checkInvariants()
	size := int64(len(key)) + int64(len(value))
	if size > l.maxBytes {
		return false
	}
	if h, ok := l.index[string(key)]; ok {
		l.replace(h, value)
		return true
	}
	l.insert(key, value, size)
	return true
}

func (l *LRU) PutIfAbsent(key, value []byte) bool {
	defer l.checkInvariants()
	if _, ok := l.index[string(key)]; ok {
		return false
	}
	size := int64(len(key)) + int64(len(value))
	if size > l.maxBytes {
		return false
	}
	l.insert(key, value, size)
	return true
}

func (l *LRU) Set(key, value []byte) bool {
	defer l.checkInvariants()
	h, ok := l.index[string(key)]
	if !ok {
		return false
	}
	size := int64(len(key)) + int64(len(value))
	if size > l.maxBytes {
		// Oversize replacement: leave the old value in place. See
		// the policy for oversize-on-update: evict other entries, never the one being updated.
		return false
	}
	l.replace(h, value)
	return true
}

func (l *LRU) Delete(key []byte) bool {
	defer l.checkInvariants()
	h, ok := l.index[string(key)]
	if !ok {
		return false
	}
	l.evict(h)
	return true
}

func (l *LRU) Get(key []byte) (value []byte, ok bool) {
	defer l.checkInvariants()
	h, found := l.index[string(key)]
	if !found {
		return nil, false
	}
	l.moveToFront(h)
	v := l.entries[h].value
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// insert admits a brand new key, evicting from the tail as needed. Caller
// has already verified size fits within maxBytes.
func (l *LRU) insert(key, value []byte, size int64) {
	l.reclaim(size)
	h := l.alloc(string(key), value)
	l.index[l.entries[h].key] = h
	l.insertFront(h)
	l.curBytes += size
}

// replace updates the value of an existing entry, evicting other entries
// (never h itself) to make room for a larger value, then promotes h to
// most-recently-used.
func (l *LRU) replace(h handle, value []byte) {
	e := &l.entries[h]
	newSize := int64(len(e.key)) + int64(len(value))
	l.curBytes -= e.size()
	l.detach(h)
	l.reclaim(newSize)
	e.value = append([]byte(nil), value...)
	l.curBytes += newSize
	l.insertFront(h)
}

// reclaim evicts least-recently-used entries until adding size more bytes
// would not overflow maxBytes, or the list is empty.
func (l *LRU) reclaim(size int64) {
	for l.curBytes+size > l.maxBytes {
		victim := l.entries[tailHandle].prev
		if victim == headHandle {
			return
		}
		l.evict(victim)
	}
}

func (l *LRU) evict(h handle) {
	e := &l.entries[h]
	l.curBytes -= e.size()
	delete(l.index, e.key)
	l.detach(h)
	if l.OnEvict != nil {
		l.OnEvict(e.key, e.value)
	}
	l.release(h)
}

func (l *LRU) moveToFront(h handle) {
	if l.entries[headHandle].next == h {
		return
	}
	l.detach(h)
	l.insertFront(h)
}

func (l *LRU) detach(h handle) {
	e := l.entries[h]
	l.link(e.prev, e.next)
}

func (l *LRU) insertFront(h handle) {
	first := l.entries[headHandle].next
	l.link(headHandle, h)
	l.link(h, first)
}

func (l *LRU) link(a, b handle) {
	l.entries[a].next = b
	l.entries[b].prev = a
}

func (l *LRU) alloc(key string, value []byte) handle {
	var h handle
	if n := len(l.free); n > 0 {
		h = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		l.entries = append(l.entries, entry{})
		h = handle(len(l.entries) - 1)
	}
	l.entries[h] = entry{key: key, value: append([]byte(nil), value...)}
	return h
}

func (l *LRU) release(h handle) {
	l.entries[h] = entry{}
	l.free = append(l.free, h)
}

// Len returns the number of live entries.
func (l *LRU) Len() int { return len(l.index) }

// Size returns the current total of key+value bytes across live entries.
func (l *LRU) Size() int64 { return l.curBytes }
