package emu

import (
	"bytes"
	"debug/elf"
	"io"
	"os"

	"github.com/sarchlab/rvsim/vio"
)

// MemoryBus is the access surface a core expects from a memory: simulated
// reads and writes that may carry side effects (cache fills), and
// side-effect-free peeks and sets for the debugger and initialization.
type MemoryBus interface {
	Read(addr uint64, width vio.Width) (uint64, bool)
	Peek(addr uint64, width vio.Width) (uint64, bool)
	Write(addr uint64, width vio.Width, value uint64) bool
	Set(addr uint64, width vio.Width, value uint64) bool
}

// Memory is a flat byte-addressable view of a contiguous region
// [base, base+size). Reads and writes are little-endian and bounds-checked.
// Read and Write model the simulated access path and may grow side effects
// in subclasses of the view (caching adapters); Peek and Set never have
// side effects and are meant for the debugger and for initialization.
type Memory struct {
	base uint64
	size uint64
	buf  []byte
}

// NewMemory allocates a memory of the given size based at base.
func NewMemory(base, size uint64) *Memory {
	return &Memory{base: base, size: size, buf: make([]byte, size)}
}

// View returns a re-based window over the same storage. The window
// [viewBase, viewBase+viewSize) maps onto this memory starting at srcBase.
func (m *Memory) View(srcBase, viewBase, viewSize uint64) *Memory {
	offset := srcBase - m.base
	return &Memory{base: viewBase, size: viewSize, buf: m.buf[offset : offset+viewSize]}
}

// Base returns the first mapped address.
func (m *Memory) Base() uint64 { return m.base }

// Size returns the mapped size in bytes.
func (m *Memory) Size() uint64 { return m.size }

func (m *Memory) outOfBound(addr uint64, width vio.Width) bool {
	end := addr + uint64(width)
	return addr < m.base || end > m.base+m.size || end < addr
}

// Read reads width bytes at addr. The second return value is false when
// the access is out of bounds.
func (m *Memory) Read(addr uint64, width vio.Width) (uint64, bool) {
	return m.Peek(addr, width)
}

// Peek reads width bytes at addr without side effects.
func (m *Memory) Peek(addr uint64, width vio.Width) (uint64, bool) {
	if m.outOfBound(addr, width) {
		return 0, false
	}
	offset := addr - m.base
	var value uint64
	for i := uint64(0); i < uint64(width); i++ {
		value |= uint64(m.buf[offset+i]) << (i * 8)
	}
	return value, true
}

// Write writes the low width bytes of value at addr, returning false when
// the access is out of bounds.
func (m *Memory) Write(addr uint64, width vio.Width, value uint64) bool {
	return m.Set(addr, width, value)
}

// Set writes the low width bytes of value at addr without side effects.
func (m *Memory) Set(addr uint64, width vio.Width, value uint64) bool {
	if m.outOfBound(addr, width) {
		return false
	}
	offset := addr - m.base
	for i := uint64(0); i < uint64(width); i++ {
		m.buf[offset+i] = byte(value >> (i * 8))
	}
	return true
}

// HostBytes returns the backing bytes from addr to the end of the region,
// or nil if addr is not mapped. It is the fast path for the ELF loader and
// bulk initialization; accesses through it trigger no side effects.
func (m *Memory) HostBytes(addr uint64) []byte {
	if m.outOfBound(addr, vio.WidthByte) {
		return nil
	}
	return m.buf[addr-m.base:]
}

// Save writes the raw memory contents to w.
func (m *Memory) Save(w io.Writer) error {
	_, err := w.Write(m.buf)
	return err
}

// SaveFile writes the raw memory contents to a checkpoint file.
func (m *Memory) SaveFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return m.Save(f)
}

// Restore reads memory contents from r, stopping at the end of the region,
// and returns the number of bytes loaded.
func (m *Memory) Restore(r io.Reader) uint64 {
	n, _ := io.ReadFull(r, m.buf)
	return uint64(n)
}

// RestoreFile reads memory contents from a checkpoint file and returns the
// number of bytes loaded.
func (m *Memory) RestoreFile(filename string) (uint64, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return m.Restore(f), nil
}

// LoadELF loads the PT_LOAD segments of an ELF binary into the memory and
// returns the entry point. Both ELF32 and ELF64 little-endian binaries are
// accepted; a buffer that does not parse as either returns 0. Segments
// outside the mapped region are silently skipped.
func (m *Memory) LoadELF(buffer []byte) uint64 {
	f, err := elf.NewFile(bytes.NewReader(buffer))
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		// If one of p_paddr and p_vaddr is zero, use the non-zero one. If
		// both are non-zero but different, the behavior is undefined.
		target := m.HostBytes(prog.Vaddr | prog.Paddr)
		if target == nil || uint64(len(target)) < prog.Memsz {
			continue
		}
		if prog.Filesz > 0 {
			if _, err := io.ReadFull(prog.Open(), target[:prog.Filesz]); err != nil {
				continue
			}
		}
		for i := prog.Filesz; i < prog.Memsz; i++ {
			target[i] = 0
		}
	}
	return f.Entry
}

// LoadELFFile loads an ELF binary from a file and returns the entry point.
func (m *Memory) LoadELFFile(filename string) (uint64, error) {
	buffer, err := os.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	return m.LoadELF(buffer), nil
}
