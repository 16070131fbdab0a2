package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/cache"
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/vio"
)

var _ = Describe("Cache", func() {
	var (
		memory  *emu.Memory
		backing *cache.MemoryBacking
		c       *cache.Cache
	)

	BeforeEach(func() {
		memory = emu.NewMemory(0x80000000, 0x10000)
		backing = cache.NewMemoryBacking(memory)
		// Small cache for testing: 1KB direct-mapped, 64B lines.
		c = cache.New(cache.Config{
			Size:          1024,
			Associativity: 1,
			BlockSize:     64,
		}, backing)
	})

	Describe("Read", func() {
		It("should miss cold and return the backing data", func() {
			memory.Set(0x80001000, vio.WidthDword, 0xdeadbeef)

			result, ok := c.Read(0x80001000, 8)
			Expect(ok).To(BeTrue())
			Expect(result.Hit).To(BeFalse())
			Expect(result.Data).To(Equal(uint64(0xdeadbeef)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on cached data", func() {
			memory.Set(0x80001000, vio.WidthDword, 0xcafebabe)

			c.Read(0x80001000, 8)
			result, ok := c.Read(0x80001000, 8)
			Expect(ok).To(BeTrue())
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint64(0xcafebabe)))
		})

		It("should fail outside the backing region", func() {
			_, ok := c.Read(0x20, 4)
			Expect(ok).To(BeFalse())
		})

		It("should evict the resident line on an index conflict", func() {
			// 1KB direct-mapped: addresses 1KB apart map to the same set.
			memory.Set(0x80001000, vio.WidthWord, 1)
			memory.Set(0x80001400, vio.WidthWord, 2)

			c.Read(0x80001000, 4)
			result, ok := c.Read(0x80001400, 4)
			Expect(ok).To(BeTrue())
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(0x80001000)))
			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		})
	})

	Describe("Write", func() {
		It("should write through to the backing memory on a miss", func() {
			_, ok := c.Write(0x80002000, 4, 0x12345678)
			Expect(ok).To(BeTrue())

			v, _ := memory.Peek(0x80002000, vio.WidthWord)
			Expect(v).To(Equal(uint64(0x12345678)))
		})

		It("should update a resident line in place", func() {
			memory.Set(0x80001000, vio.WidthWord, 0x11111111)
			c.Read(0x80001000, 4)

			result, ok := c.Write(0x80001000, 4, 0x22222222)
			Expect(ok).To(BeTrue())
			Expect(result.Hit).To(BeTrue())

			read, _ := c.Read(0x80001000, 4)
			Expect(read.Hit).To(BeTrue())
			Expect(read.Data).To(Equal(uint64(0x22222222)))

			v, _ := memory.Peek(0x80001000, vio.WidthWord)
			Expect(v).To(Equal(uint64(0x22222222)))
		})

		It("should fail outside the backing region", func() {
			_, ok := c.Write(0x20, 4, 1)
			Expect(ok).To(BeFalse())
		})
	})

	It("should drop all lines on Reset", func() {
		memory.Set(0x80001000, vio.WidthWord, 7)
		c.Read(0x80001000, 4)
		c.Reset()

		result, _ := c.Read(0x80001000, 4)
		Expect(result.Hit).To(BeFalse())
		Expect(c.Stats().Reads).To(Equal(uint64(1)))
	})
})

var _ = Describe("CachedMemory", func() {
	var (
		inner *emu.Memory
		m     *cache.CachedMemory
	)

	BeforeEach(func() {
		inner = emu.NewMemory(0x80000000, 0x10000)
		m = cache.NewCachedMemory(inner, cache.DefaultConfig())
	})

	It("should behave like the wrapped memory for reads and writes", func() {
		Expect(m.Write(0x80000100, vio.WidthWord, 0xa5a5a5a5)).To(BeTrue())
		v, ok := m.Read(0x80000100, vio.WidthWord)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0xa5a5a5a5)))
	})

	It("should not disturb the cache on Peek", func() {
		inner.Set(0x80000200, vio.WidthWord, 0x77)
		before := m.Cache().Stats().Reads
		v, ok := m.Peek(0x80000200, vio.WidthWord)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0x77)))
		Expect(m.Cache().Stats().Reads).To(Equal(before))
	})

	It("should stay coherent after a debugger-side Set", func() {
		m.Write(0x80000300, vio.WidthWord, 1)
		m.Read(0x80000300, vio.WidthWord)
		Expect(m.Set(0x80000300, vio.WidthWord, 2)).To(BeTrue())
		v, _ := m.Read(0x80000300, vio.WidthWord)
		Expect(v).To(Equal(uint64(2)))
	})

	It("should reject out-of-bound accesses", func() {
		_, ok := m.Read(0x10, vio.WidthWord)
		Expect(ok).To(BeFalse())
		Expect(m.Write(0x10, vio.WidthWord, 1)).To(BeFalse())
	})

	It("should serve as the data bus of a system CPU", func() {
		cpu := emu.NewSystemCPU[uint32](inner, m)
		cpu.Reset(0x80000000)
		inner.Set(0x80000000, vio.WidthWord, 0x07b00093) // addi x1, x0, 123
		inner.Set(0x80000004, vio.WidthWord, 0x00100073) // ebreak

		for i := 0; i < 10 && !cpu.Stopped(); i++ {
			cpu.NextInstruction()
		}
		Expect(cpu.Stopped()).To(BeTrue())
		Expect(cpu.Gpr(1)).To(Equal(uint32(123)))
	})
})
