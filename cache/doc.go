// Package cache implements a capacity-bounded, in-memory key/value store with
// least-recently-used eviction.
//
// LRU is not safe for concurrent use; callers sharing a store across
// goroutines should use SyncLRU, or wrap their own instance under a mutex.
package cache
