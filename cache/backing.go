package cache

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/vio"
)

// MemoryBacking adapts an emu.Memory as a BackingStore.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a BackingStore over a memory view.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// Read fetches size bytes from the backing memory.
func (m *MemoryBacking) Read(addr uint64, size int) ([]byte, bool) {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		v, ok := m.memory.Peek(addr+uint64(i), vio.WidthByte)
		if !ok {
			return nil, false
		}
		data[i] = byte(v)
	}
	return data, true
}

// Write stores data to the backing memory.
func (m *MemoryBacking) Write(addr uint64, data []byte) bool {
	for i, b := range data {
		if !m.memory.Set(addr+uint64(i), vio.WidthByte, uint64(b)) {
			return false
		}
	}
	return true
}
