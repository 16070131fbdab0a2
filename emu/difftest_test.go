package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/vio"
)

// newTestCPU builds a system CPU over a private memory holding the given
// program at 0x80000000.
func newTestCPU(program []uint32) (*emu.SystemCPU[uint32], *emu.Memory) {
	mem := emu.NewMemory(0x80000000, 0x10000)
	loadProgram(mem, 0x80000000, program)
	events := vio.NewRingBuffer[emu.Event[uint32]](256)
	cpu := emu.NewSystemCPU(mem, mem, emu.WithEventBuffer[uint32](events))
	return cpu, mem
}

var _ = Describe("SimpleDifftest", func() {
	program := []uint32{
		addi(1, 0, 7),
		addi(2, 0, 35),
		add(3, 1, 2),
		ebreak,
	}

	It("should run identical CPUs to completion without error", func() {
		dut, _ := newTestCPU(program)
		ref, _ := newTestCPU(program)
		events := vio.NewRingBuffer[emu.Event[uint32]](256)
		d := emu.NewSimpleDifftest[uint32](dut, ref,
			emu.WithDifftestEventBuffer[uint32](events))
		d.Reset(0x80000000)

		for i := 0; i < 100 && !d.Stopped(); i++ {
			d.NextCycle()
		}

		Expect(d.Stopped()).To(BeTrue())
		Expect(d.DiffError()).To(BeFalse())
		Expect(d.Gpr(3)).To(Equal(uint32(42)))
		Expect(d.PC()).To(Equal(uint32(0x8000000c)))
	})

	It("should latch an error when a register write diverges", func() {
		divergent := []uint32{
			addi(5, 0, 0x10),
			ebreak,
		}
		dut, dutMem := newTestCPU(divergent)
		ref, _ := newTestCPU(divergent)

		// The DUT's program computes a different value at the same pc.
		loadProgram(dutMem, 0x80000000, []uint32{
			addi(5, 0, 0x11),
			ebreak,
		})

		events := vio.NewRingBuffer[emu.Event[uint32]](256)
		d := emu.NewSimpleDifftest[uint32](dut, ref,
			emu.WithDifftestEventBuffer[uint32](events))
		d.Reset(0x80000000)

		d.NextCycle()

		Expect(d.DiffError()).To(BeTrue())
		Expect(d.Stopped()).To(BeTrue())

		var diffEvent emu.Event[uint32]
		for _, e := range events.All() {
			if e.Type == emu.EventDiffError {
				diffEvent = e
			}
		}
		Expect(diffEvent.Type).To(Equal(emu.EventDiffError))
		Expect(diffEvent.V1).To(Equal(uint32(emu.EventRegWrite)))
		// V2 carries the raw instruction at the current DUT PC.
		instr, _ := dut.PmemPeek(dut.PC(), vio.WidthWord)
		Expect(diffEvent.V2).To(Equal(instr))
	})

	It("should record the compared commit stream in its own buffer", func() {
		dut, _ := newTestCPU(program)
		ref, _ := newTestCPU(program)
		events := vio.NewRingBuffer[emu.Event[uint32]](256)
		d := emu.NewSimpleDifftest[uint32](dut, ref,
			emu.WithDifftestEventBuffer[uint32](events))
		d.Reset(0x80000000)

		for i := 0; i < 100 && !d.Stopped(); i++ {
			d.NextCycle()
		}

		Expect(collectTypes(events)).To(Equal([]emu.EventType{
			emu.EventRegWrite, emu.EventRegWrite, emu.EventRegWrite,
		}))
	})

	It("should fail fast when a child has no event buffer", func() {
		mem := emu.NewMemory(0x80000000, 0x1000)
		loadProgram(mem, 0x80000000, program)
		dut := emu.NewSystemCPU[uint32](mem, mem) // no event buffer
		ref, _ := newTestCPU(program)

		d := emu.NewSimpleDifftest[uint32](dut, ref)
		d.Reset(0x80000000)
		d.NextCycle()

		Expect(d.DiffError()).To(BeTrue())
		Expect(d.Stopped()).To(BeTrue())
	})

	It("should return the minimum register count", func() {
		dut, _ := newTestCPU(program)
		ref, _ := newTestCPU(program)
		d := emu.NewSimpleDifftest[uint32](dut, ref)
		Expect(d.NGpr()).To(Equal(uint8(32)))
	})

	It("should delegate read accessors to the DUT", func() {
		dut, dutMem := newTestCPU(program)
		ref, _ := newTestCPU(program)
		dutMem.Set(0x80000800, vio.WidthWord, 0x99)

		d := emu.NewSimpleDifftest[uint32](dut, ref)
		d.Reset(0x80000000)

		v, ok := d.PmemPeek(0x80000800, vio.WidthWord)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint32(0x99)))

		paddr, ok := d.VaddrToPaddr(0x80000800)
		Expect(ok).To(BeTrue())
		Expect(paddr).To(Equal(uint32(0x80000800)))
	})
})
