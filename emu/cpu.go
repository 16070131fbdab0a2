package emu

import (
	"fmt"

	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/riscv"
	"github.com/sarchlab/rvsim/vio"
)

// CPU is the interface shared by every simulated processor: the system
// cores, the differential tester, and anything the debugger drives.
type CPU[W Word] interface {
	// Reset prepares the CPU for execution starting at initPC.
	Reset(initPC W)

	// NGpr returns the number of general purpose registers.
	NGpr() uint8

	// GprName returns the ABI name of a register.
	GprName(addr uint8) string

	// GprAddr returns the register number for an ABI or xNN name.
	GprAddr(name string) uint8

	// PC returns the program counter of the next instruction to commit.
	PC() W

	// GprFile returns the whole register file, or nil if not supported.
	GprFile() []W

	// Gpr returns the value of one register.
	Gpr(addr uint8) W

	// NextCycle advances the CPU by one clock cycle.
	NextCycle()

	// NextCycleN advances the CPU by n clock cycles.
	NextCycleN(n uint64)

	// NextInstruction advances the CPU until at least one more instruction
	// commits. Superscalar cores may commit more than one.
	NextInstruction()

	// NextInstructionN advances the CPU until at least n more instructions
	// commit.
	NextInstructionN(n uint64)

	// VaddrToPaddr translates a virtual address; the second return value
	// is false if the address is unmapped.
	VaddrToPaddr(vaddr W) (W, bool)

	// PmemPeek reads physical memory without side effects. MMIO addresses
	// are not readable this way and return false.
	PmemPeek(addr W, width vio.Width) (W, bool)

	// VmemPeek reads virtual memory without side effects.
	VmemPeek(addr W, width vio.Width) (W, bool)

	// Stopped reports whether execution has ended.
	Stopped() bool

	// Trap returns the cause of the most recently delivered trap; the
	// second return value is false if the last instruction retired
	// cleanly.
	Trap() (W, bool)

	// EventBuffer returns the commit log, or nil when tracing is off.
	EventBuffer() *vio.RingBuffer[Event[W]]
}

// SystemCPU binds the unprivileged user core, the privilege module, the
// decode cache, and the attached buses into a machine-mode RISC-V hart
// stepped one instruction per cycle.
type SystemCPU[W Word] struct {
	userCore    UserCore[W]
	priv        PrivilegeModule[W]
	decodeCache *insts.DecodeCache
	op          Op[W]

	events    *vio.RingBuffer[Event[W]]
	mmioAgent vio.IOAgent

	lastTrap    W
	hasLastTrap bool
	isStopped   bool
}

// SystemCPUOption configures a SystemCPU.
type SystemCPUOption[W Word] func(*SystemCPU[W])

// WithMMIO attaches an MMIO agent used as the fallback for memory accesses
// outside RAM.
func WithMMIO[W Word](agent vio.IOAgent) SystemCPUOption[W] {
	return func(c *SystemCPU[W]) {
		c.mmioAgent = agent
	}
}

// WithEventBuffer attaches a commit-event log.
func WithEventBuffer[W Word](buf *vio.RingBuffer[Event[W]]) SystemCPUOption[W] {
	return func(c *SystemCPU[W]) {
		c.events = buf
	}
}

// WithDecodeCache overrides the decode cache geometry. The default is 1024
// lines with a shift of 2 for fixed 32-bit instructions.
func WithDecodeCache[W Word](offsetBits, shamt uint) SystemCPUOption[W] {
	return func(c *SystemCPU[W]) {
		c.decodeCache = insts.NewDecodeCache(offsetBits, shamt)
	}
}

// NewSystemCPU creates a system CPU on the given instruction and data
// buses. The two buses usually share one backing memory.
func NewSystemCPU[W Word](instrBus, dataBus MemoryBus, opts ...SystemCPUOption[W]) *SystemCPU[W] {
	c := &SystemCPU[W]{
		decodeCache: insts.NewDecodeCache(10, 2),
	}
	c.priv.InstrBus = instrBus
	c.priv.DataBus = dataBus
	for _, opt := range opts {
		opt(c)
	}
	c.priv.MmioBus = c.mmioAgent
	return c
}

// Privilege exposes the privilege module, for the debugger and for device
// agents raising interrupts.
func (c *SystemCPU[W]) Privilege() *PrivilegeModule[W] { return &c.priv }

// RaiseInterrupt sets the pending bit for an interrupt cause.
func (c *SystemCPU[W]) RaiseInterrupt(cause W) { c.priv.RaiseInterrupt(cause) }

// Reset zeroes the register file, resets the CSRs, sets the PC, and clears
// the stop and trap state.
func (c *SystemCPU[W]) Reset(initPC W) {
	c.userCore.Reset()
	c.priv.Reset()
	c.decodeCache.Reset()
	c.op = Op[W]{PC: initPC}
	c.hasLastTrap = false
	c.isStopped = false
}

// NGpr returns 32.
func (c *SystemCPU[W]) NGpr() uint8 { return 32 }

// GprName returns the ABI name of a register.
func (c *SystemCPU[W]) GprName(addr uint8) string { return riscv.GprName(addr) }

// GprAddr returns the register number for a name.
func (c *SystemCPU[W]) GprAddr(name string) uint8 { return riscv.GprAddr(name) }

// PC returns the program counter of the next instruction to commit.
func (c *SystemCPU[W]) PC() W { return c.op.PC }

// GprFile returns the register file.
func (c *SystemCPU[W]) GprFile() []W { return c.userCore.Gpr[:] }

// Gpr returns the value of one register.
func (c *SystemCPU[W]) Gpr(addr uint8) W { return c.userCore.Gpr[addr] }

// NextCycle advances by one cycle; this core commits one instruction per
// cycle.
func (c *SystemCPU[W]) NextCycle() { c.NextInstruction() }

// NextCycleN advances by n cycles.
func (c *SystemCPU[W]) NextCycleN(n uint64) {
	for i := uint64(0); i < n; i++ {
		c.NextCycle()
	}
}

// NextInstructionN advances by n instructions.
func (c *SystemCPU[W]) NextInstructionN(n uint64) {
	for i := uint64(0); i < n; i++ {
		c.NextInstruction()
	}
}

// NextInstruction steps the staged pipeline through one full instruction:
// fetch, decode, execute, privileged completion, trap or interrupt
// handling, and retire.
func (c *SystemCPU[W]) NextInstruction() {
	op := &c.op

	c.priv.PaddrFetch(op)

	if op.Stage == StageFetch {
		c.logEvent(Event[W]{Type: EventIssue, PC: op.PC, V1: W(op.Instr)})
		op.Decode = c.decodeCache.Decode(uint64(op.PC), op.Instr)
		op.Stage = StageDecode
	}

	if op.Stage == StageDecode {
		c.userCore.Execute(op)
	}

	switch op.Stage {
	case StageLoad:
		load := op.Load
		c.priv.PaddrLoad(op)
		if op.Stage == StageRetire {
			c.logEvent(Event[W]{
				Type: EventLoad, PC: op.PC,
				V1: load.Addr,
				V2: vio.ZeroTruncate(op.Retire.Value, load.Width),
			})
		}
	case StageStore:
		store := op.Store
		c.priv.PaddrStore(op)
		if op.Stage == StageRetire {
			c.logEvent(Event[W]{
				Type: EventStore, PC: op.PC,
				V1: store.Addr,
				V2: vio.ZeroTruncate(store.Data, store.Width),
			})
		}
	case StageCsrOp:
		c.priv.CsrOp(op)
	case StageSysOp:
		sys := op.Sys
		c.priv.SysOp(op)
		if op.Stage == StageRetire && (sys.Mret || sys.Sret) {
			c.logEvent(Event[W]{Type: EventTrapRet, PC: op.PC, V1: op.NextPC})
		}
	}

	if op.Stage == StageTrap {
		if op.Trap.Cause == W(riscv.ExceptBreakpoint) {
			// ebreak is the halt signal, not a trap to dispatch.
			c.isStopped = true
			return
		}
		c.logEvent(Event[W]{Type: EventTrap, PC: op.PC, V1: op.Trap.Cause, V2: op.Trap.Tval})
		c.lastTrap = op.Trap.Cause
		c.hasLastTrap = true
		c.priv.HandleException(op)
	} else {
		c.hasLastTrap = false
		c.priv.HandleInterrupt(op)
	}

	if op.Stage != StageRetire {
		panic(fmt.Sprintf("emu: instruction ended cycle in stage %d", op.Stage))
	}
	if op.Retire.Rd != 0 {
		c.logEvent(Event[W]{Type: EventRegWrite, PC: op.PC, V1: W(op.Retire.Rd), V2: op.Retire.Value})
		c.userCore.Gpr[op.Retire.Rd] = op.Retire.Value
	}
	op.PC = op.NextPC

	if a, ok := c.mmioAgent.(interface{ NextCycle() }); ok {
		a.NextCycle()
	}
}

func (c *SystemCPU[W]) logEvent(e Event[W]) {
	if c.events != nil {
		c.events.PushBack(e)
	}
}

// VaddrToPaddr translates a virtual address through the privilege module's
// translation hook.
func (c *SystemCPU[W]) VaddrToPaddr(vaddr W) (W, bool) {
	return c.priv.VaddrToPaddr(vaddr)
}

// PmemPeek reads physical memory without side effects. MMIO addresses
// return false.
func (c *SystemCPU[W]) PmemPeek(addr W, width vio.Width) (W, bool) {
	v, ok := c.priv.DataBus.Peek(uint64(addr), width)
	return W(v), ok
}

// VmemPeek reads virtual memory without side effects.
func (c *SystemCPU[W]) VmemPeek(addr W, width vio.Width) (W, bool) {
	paddr, ok := c.VaddrToPaddr(addr)
	if !ok {
		return 0, false
	}
	return c.PmemPeek(paddr, width)
}

// Halt requests a host-side stop; the core reports Stopped from now on.
func (c *SystemCPU[W]) Halt() { c.isStopped = true }

// Stopped reports whether the core hit an ebreak or a host-side halt.
func (c *SystemCPU[W]) Stopped() bool { return c.isStopped }

// Trap returns the cause of the most recently delivered trap.
func (c *SystemCPU[W]) Trap() (W, bool) { return c.lastTrap, c.hasLastTrap }

// EventBuffer returns the commit log.
func (c *SystemCPU[W]) EventBuffer() *vio.RingBuffer[Event[W]] { return c.events }
