package cache

import "sync"

// SyncLRU wraps an LRU with a mutex so it can be shared across the
// goroutines the Server spawns per connection. A shared cache needs either
// this or a genuinely thread-safe Storage; this is the former.
type SyncLRU struct {
	mu  sync.Mutex
	lru *LRU
}

var _ Storage = (*SyncLRU)(nil)

func NewSyncLRU(maxBytes int64) *SyncLRU {
	return &SyncLRU{lru: NewLRU(maxBytes)}
}

func (s *SyncLRU) Put(key, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Put(key, value)
}

func (s *SyncLRU) PutIfAbsent(key, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.PutIfAbsent(key, value)
}

func (s *SyncLRU) Set(key, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Set(key, value)
}

func (s *SyncLRU) Delete(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Delete(key)
}

func (s *SyncLRU) Get(key []byte) (value []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Get(key)
}

func (s *SyncLRU) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

func (s *SyncLRU) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Size()
}
