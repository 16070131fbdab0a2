package cache

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/vio"
)

// CachedMemory presents the same access surface as emu.Memory with reads
// routed through a cache. Read and Write carry the cache side effects;
// Peek bypasses the cache entirely and Set writes the backing memory
// directly and only drops the covering line, as required of the debugger
// path. Because the policy is write-through, the backing memory always
// holds current data and peeks stay coherent.
type CachedMemory struct {
	inner *emu.Memory
	cache *Cache
}

// NewCachedMemory wraps a memory view with a cache of the given
// configuration.
func NewCachedMemory(inner *emu.Memory, config Config) *CachedMemory {
	return &CachedMemory{
		inner: inner,
		cache: New(config, NewMemoryBacking(inner)),
	}
}

// Cache exposes the underlying cache, mainly for statistics.
func (m *CachedMemory) Cache() *Cache { return m.cache }

// Inner returns the wrapped memory view.
func (m *CachedMemory) Inner() *emu.Memory { return m.inner }

// Read reads through the cache, filling a line on miss.
func (m *CachedMemory) Read(addr uint64, width vio.Width) (uint64, bool) {
	if _, ok := m.inner.Peek(addr, width); !ok {
		return 0, false
	}
	// An access spanning two lines cannot be served from one line.
	if m.crossesLine(addr, width) {
		return m.inner.Read(addr, width)
	}
	result, ok := m.cache.Read(addr, int(width))
	if !ok {
		return 0, false
	}
	return result.Data, true
}

// Peek reads the backing memory directly, without touching the cache.
func (m *CachedMemory) Peek(addr uint64, width vio.Width) (uint64, bool) {
	return m.inner.Peek(addr, width)
}

// Write writes through the cache to the backing memory.
func (m *CachedMemory) Write(addr uint64, width vio.Width, value uint64) bool {
	_, ok := m.cache.Write(addr, int(width), value)
	if ok && m.crossesLine(addr, width) {
		m.cache.Invalidate(addr)
		m.cache.Invalidate(addr + uint64(width) - 1)
	}
	return ok
}

func (m *CachedMemory) crossesLine(addr uint64, width vio.Width) bool {
	blockSize := uint64(m.cache.Config().BlockSize)
	return addr%blockSize+uint64(width) > blockSize
}

// Set writes the backing memory directly and drops the covering cache
// line, keeping the cache consistent with debugger-side mutation.
func (m *CachedMemory) Set(addr uint64, width vio.Width, value uint64) bool {
	if !m.inner.Set(addr, width, value) {
		return false
	}
	m.cache.Invalidate(addr)
	return true
}
