//go:build !debug

package cache

func (l *LRU) checkInvariants() {}
