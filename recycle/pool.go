// Package recycle contains utilities for reusable, pool-backed byte buffers.
package recycle

import (
	"fmt"
	"sync"
)

const minDefChunkSize = 1 << 7
const maxDefChunkSize = 1 << 20

var DefaultChunkSizes = func() (sz []int) {
	for chSz := minDefChunkSize; chSz <= maxDefChunkSize; chSz *= 2 {
		sz = append(sz, chSz)
	}
	return
}()

// TODO bench for performance and allocations. Single and concurrent.

type Pool struct {
	chunkSizes []int
	chunkPools []sync.Pool
}

func NewPool() *Pool {
	return NewPoolSizes(DefaultChunkSizes)
}

// NewPoolSizes creates new pool, which produce chunks with sizes described in chunkSizes.
// chunkSizes should be sorted.
func NewPoolSizes(chunkSizes []int) *Pool {
	if chunkSizes == nil {
		chunkSizes = DefaultChunkSizes[:]
	}
	for i := 0; i < len(chunkSizes); i++ {
		size := chunkSizes[i]
		if size <= 0 {
			panic("non positive size")
		}
		if i != 0 && chunkSizes[i-1] >= size {
			panic("sizes unsorted or have duplicates")
		}
	}
	chunkPools := make([]sync.Pool, len(chunkSizes))
	for i := range chunkSizes {
		size := chunkSizes[i] // Move into range declaration cause using same size.
		chunkPools[i].New = func() interface{} {
			return make([]byte, size)
		}
	}
	return &Pool{
		chunkSizes: chunkSizes,
		chunkPools: chunkPools,
	}
}

// Get borrows a chunk from the pool. The returned slice has len == size,
// except that a size above MaxChunkSize gets a chunk of MaxChunkSize bytes.
// Callers must return it via Put once done.
func (p *Pool) Get(size int) []byte {
	return p.chunk(size)
}

// Put returns a chunk previously obtained from Get back to the pool.
func (p *Pool) Put(chunk []byte) {
	p.recycleChunk(chunk)
}

// chunk return chunk of requested size.
// returned slice len equal to size or p.maxChunkSize()
func (p *Pool) chunk(size int) []byte {
	if p.isGCChunkSize(size) {
		// GC will handle such case better.
		return make([]byte, size)
	}
	var i int
	// O(n) but len(chunkSizes) should be <= 30 normally.
	for i = range p.chunkSizes {
		if size <= p.chunkSizes[i] {
			return p.chunkPools[i].Get().([]byte)[0:size]
		}
	}
	return p.chunkPools[i].Get().([]byte)
}

func (p *Pool) recycleChunk(chunk []byte) {
	size := cap(chunk)
	if p.isGCChunkSize(size) {
		// Garbage, that should be collected by GC.
		return
	}
	// O(n) but len(chunkSizes) should be <= 30 normally.
	for i := range p.chunkSizes {
		if size == p.chunkSizes[i] {
			p.chunkPools[i].Put(chunk[:size])
			return
		}
	}
	panic(fmt.Errorf("unexpected chunk size: %v", size))
}

func (p *Pool) MinChunkSize() int {
	return p.chunkSizes[0]
}

func (p *Pool) MaxChunkSize() int {
	return p.chunkSizes[len(p.chunkSizes)-1]
}

func (p *Pool) isGCChunkSize(size int) bool {
	return size <= p.MinChunkSize()/2
}
