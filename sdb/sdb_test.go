package sdb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/sdb"
	"github.com/sarchlab/rvsim/vio"
)

// program: a counting loop followed by ebreak.
//
//	addi x1, x0, 0
//	addi x1, x1, 1
//	addi x1, x1, 1
//	addi x1, x1, 1
//	ebreak
var loopProgram = []uint32{
	0x00000093,
	0x00108093,
	0x00108093,
	0x00108093,
	0x00100073,
}

func newShellCPU() *emu.SystemCPU[uint32] {
	mem := emu.NewMemory(0x80000000, 0x1000)
	for i, instr := range loopProgram {
		mem.Set(0x80000000+uint64(i)*4, vio.WidthWord, uint64(instr))
	}
	events := vio.NewRingBuffer[emu.Event[uint32]](64)
	cpu := emu.NewSystemCPU(mem, mem, emu.WithEventBuffer[uint32](events))
	cpu.Reset(0x80000000)
	return cpu
}

var _ = Describe("Sdb", func() {
	var (
		cpu   *emu.SystemCPU[uint32]
		shell *sdb.Sdb[uint32]
	)

	BeforeEach(func() {
		cpu = newShellCPU()
		shell = sdb.NewSdb[uint32](emu.CPU[uint32](cpu))
	})

	It("should start running and quit on command", func() {
		Expect(shell.Stopped()).To(BeFalse())
		shell.ExecuteCommand("quit")
		Expect(shell.Stopped()).To(BeTrue())
	})

	It("should step the requested number of instructions", func() {
		shell.ExecuteCommand("step")
		Expect(cpu.PC()).To(Equal(uint32(0x80000004)))
		shell.ExecuteCommand("step 2")
		Expect(cpu.PC()).To(Equal(uint32(0x8000000c)))
	})

	It("should run to completion on continue", func() {
		shell.ExecuteCommand("continue")
		Expect(cpu.Stopped()).To(BeTrue())
		Expect(cpu.Gpr(1)).To(Equal(uint32(3)))
	})

	It("should stop at a breakpoint", func() {
		shell.ExecuteCommand("break 0x80000008")
		shell.ExecuteCommand("continue")
		Expect(cpu.PC()).To(Equal(uint32(0x80000008)))
		Expect(cpu.Stopped()).To(BeFalse())
	})

	It("should stop when a watched expression changes", func() {
		shell.ExecuteCommand("watch ra == 2")
		shell.ExecuteCommand("continue")
		// ra reaches 2 after the third addi.
		Expect(cpu.PC()).To(Equal(uint32(0x8000000c)))
	})

	It("should accept an expression as the prompt of the step count", func() {
		shell.ExecuteCommand("step 1 + 1")
		Expect(cpu.PC()).To(Equal(uint32(0x80000008)))
	})

	It("should report its prompt", func() {
		Expect(shell.Prompt()).To(Equal("sdb> "))
	})
})

var _ = Describe("SdbDifftest", func() {
	newPair := func() *emu.SimpleDifftest[uint32] {
		dut := newShellCPU()
		ref := newShellCPU()
		d := emu.NewSimpleDifftest[uint32](dut, ref)
		d.Reset(0x80000000)
		return d
	}

	It("should switch focus with the dut, ref, and difftest commands", func() {
		d := newPair()
		shell := sdb.NewSdbDifftest(d)
		Expect(shell.Prompt()).To(Equal("sdb|difftest> "))

		shell.ExecuteCommand("dut")
		Expect(shell.Prompt()).To(Equal("sdb|dut> "))

		shell.ExecuteCommand("ref")
		Expect(shell.Prompt()).To(Equal("sdb|ref> "))

		shell.ExecuteCommand("difftest")
		Expect(shell.Prompt()).To(Equal("sdb|difftest> "))
	})

	It("should step both CPUs when focused on the tester", func() {
		d := newPair()
		shell := sdb.NewSdbDifftest(d)
		shell.ExecuteCommand("step 2")
		Expect(d.Dut.PC()).To(Equal(uint32(0x80000008)))
		Expect(d.Ref.PC()).To(Equal(uint32(0x80000008)))
	})
})
