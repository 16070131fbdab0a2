package emu

import (
	"github.com/sarchlab/rvsim/riscv"
	"github.com/sarchlab/rvsim/vio"
)

// mstatusFields is the structured form of the status register fields this
// implementation tracks. Reading mstatus or sstatus packs them; writing
// re-packs them, with invalid MPP patterns coerced to M.
type mstatusFields struct {
	MPP  riscv.PrivLevel
	SPP  bool
	MPIE bool
	SPIE bool
	MIE  bool
	SIE  bool
}

// PrivilegeModule implements the RISC-V privilege architecture: privilege
// levels, CSRs, exception and interrupt delivery with delegation, and
// privilege transitions. Memory operations are delegated here because they
// may involve address translation and MMIO; the module consumes and
// produces Op records and knows nothing about the decoder.
type PrivilegeModule[W Word] struct {
	PrivLevel riscv.PrivLevel

	Mepc     W
	Mtvec    W
	Mcause   W
	Mtval    W
	Mscratch W
	Mie      W
	Mip      W
	Medeleg  W
	Mideleg  W

	Sepc     W
	Stvec    W
	Scause   W
	Stval    W
	Sscratch W
	Sie      W
	Sip      W

	Status mstatusFields

	InstrBus MemoryBus
	DataBus  MemoryBus
	MmioBus  vio.IOAgent
}

// Reset initializes all privilege state to its reset values: M mode,
// MPP=M, everything else zero.
func (p *PrivilegeModule[W]) Reset() {
	*p = PrivilegeModule[W]{
		PrivLevel: riscv.PrivM,
		Status:    mstatusFields{MPP: riscv.PrivM},
		InstrBus:  p.InstrBus,
		DataBus:   p.DataBus,
		MmioBus:   p.MmioBus,
	}
}

// VaddrToPaddr translates a virtual address. Translation is presently
// identity in every privilege level; the hook stays because Sv32/Sv39 page
// walks are planned extensions, so callers must not inline it.
func (p *PrivilegeModule[W]) VaddrToPaddr(vaddr W) (W, bool) {
	return vaddr, true
}

// PaddrFetch fetches the instruction word at op.PC from the instruction
// bus without translation, for cores running without virtual memory. The
// op moves to StageFetch on success and StageTrap on failure.
func (p *PrivilegeModule[W]) PaddrFetch(op *Op[W]) {
	paddr := op.PC
	if paddr&1 != 0 {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptInstrMisalign), Tval: paddr}
		return
	}
	instr, ok := p.InstrBus.Read(uint64(paddr), vio.WidthWord)
	if !ok {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptInstrFault), Tval: paddr}
		return
	}
	op.Stage = StageFetch
	op.Instr = uint32(instr)
}

// VaddrFetch fetches the instruction word at op.PC with address
// translation. Translation failure raises an instruction page fault;
// memory failure raises an instruction access fault.
func (p *PrivilegeModule[W]) VaddrFetch(op *Op[W]) {
	vaddr := op.PC
	paddr, ok := p.VaddrToPaddr(vaddr)
	if !ok {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptInstrPageFault), Tval: vaddr}
		return
	}
	if paddr&1 != 0 {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptInstrMisalign), Tval: vaddr}
		return
	}
	instr, ok := p.InstrBus.Read(uint64(paddr), vio.WidthWord)
	if !ok {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptInstrFault), Tval: vaddr}
		return
	}
	op.Stage = StageFetch
	op.Instr = uint32(instr)
}

func (p *PrivilegeModule[W]) busLoad(paddr W, width vio.Width) (uint64, bool) {
	data, ok := p.DataBus.Read(uint64(paddr), width)
	// Fall back to MMIO if the address is out of RAM.
	if !ok && p.MmioBus != nil {
		data, ok = p.MmioBus.Read(uint64(paddr), width)
	}
	return data, ok
}

func (p *PrivilegeModule[W]) busStore(paddr W, width vio.Width, data W) bool {
	success := p.DataBus.Write(uint64(paddr), width, uint64(data))
	if !success && p.MmioBus != nil {
		success = p.MmioBus.Write(uint64(paddr), width, uint64(data))
	}
	return success
}

// PaddrLoad completes a StageLoad op against physical memory, with MMIO
// fallback. Success retires the loaded value; failure raises a load access
// fault.
func (p *PrivilegeModule[W]) PaddrLoad(op *Op[W]) {
	load := op.Load
	data, ok := p.busLoad(load.Addr, load.Width)
	if !ok {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptLoadFault), Tval: load.Addr}
		return
	}
	value := W(data)
	if load.SignExtend {
		value = vio.SignExtend(value, load.Width)
	}
	op.Stage = StageRetire
	op.Retire = RetireOp[W]{Rd: load.Rd, Value: value}
}

// VaddrLoad completes a StageLoad op with address translation.
func (p *PrivilegeModule[W]) VaddrLoad(op *Op[W]) {
	load := op.Load
	paddr, ok := p.VaddrToPaddr(load.Addr)
	if !ok {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptLoadPageFault), Tval: load.Addr}
		return
	}
	data, ok := p.busLoad(paddr, load.Width)
	if !ok {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptLoadFault), Tval: load.Addr}
		return
	}
	value := W(data)
	if load.SignExtend {
		value = vio.SignExtend(value, load.Width)
	}
	op.Stage = StageRetire
	op.Retire = RetireOp[W]{Rd: load.Rd, Value: value}
}

// PaddrStore completes a StageStore op against physical memory, with MMIO
// fallback. Success yields a retire with no register writeback.
func (p *PrivilegeModule[W]) PaddrStore(op *Op[W]) {
	store := op.Store
	if !p.busStore(store.Addr, store.Width, store.Data) {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptStoreFault), Tval: store.Addr}
		return
	}
	op.Stage = StageRetire
	op.Retire = RetireOp[W]{}
}

// VaddrStore completes a StageStore op with address translation.
func (p *PrivilegeModule[W]) VaddrStore(op *Op[W]) {
	store := op.Store
	paddr, ok := p.VaddrToPaddr(store.Addr)
	if !ok {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptStorePageFault), Tval: store.Addr}
		return
	}
	if !p.busStore(paddr, store.Width, store.Data) {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptStoreFault), Tval: store.Addr}
		return
	}
	op.Stage = StageRetire
	op.Retire = RetireOp[W]{}
}

// RaiseInterrupt sets the pending bit for the interrupt cause, in sip if
// the cause is delegated through mideleg and in mip otherwise. This is the
// external entry point for device agents.
func (p *PrivilegeModule[W]) RaiseInterrupt(cause W) {
	bit := W(1) << (cause &^ riscv.IntrMask[W]())
	if p.Mideleg&bit != 0 {
		p.Sip |= bit
	} else {
		p.Mip |= bit
	}
}

// HandleException delivers a StageTrap op: it selects the target privilege
// level via medeleg, saves the trap state, redirects op.NextPC to the
// vector base, and rewrites the op to a synthetic retire that preserves
// integer state. Exception handlers are always direct, never vectored.
func (p *PrivilegeModule[W]) HandleException(op *Op[W]) {
	pc := op.PC
	cause := op.Trap.Cause
	tval := op.Trap.Tval

	target := riscv.PrivM
	if p.PrivLevel != riscv.PrivM && p.Medeleg&(W(1)<<cause) != 0 {
		target = riscv.PrivS
	}

	var targetAddr W
	if target == riscv.PrivM {
		targetAddr = p.Mtvec &^ W(riscv.MtvecVectored)
		p.Mcause = cause
		p.Mtval = tval
		p.Mepc = pc
		p.Status.MPP = p.PrivLevel
		p.Status.MPIE = p.Status.MIE
		p.Status.MIE = false
	} else {
		targetAddr = p.Stvec &^ W(riscv.MtvecVectored)
		p.Scause = cause
		p.Stval = tval
		p.Sepc = pc
		p.Status.SPP = p.PrivLevel == riscv.PrivS
		p.Status.SPIE = p.Status.SIE
		p.Status.SIE = false
	}
	p.PrivLevel = target

	op.Stage = StageRetire
	op.NextPC = targetAddr
	op.Retire = RetireOp[W]{}
}

// HandleInterrupt checks for a pending, enabled interrupt after a trap-free
// retire and, if one must be taken, saves state and redirects op.NextPC.
// Machine interrupts are taken when MIE is set or the hart runs below M;
// supervisor interrupts are taken below M when SIE is set or the hart runs
// in U. The lowest set bit wins. Interrupt delivery honors the vectored
// mode bit of the target tvec.
func (p *PrivilegeModule[W]) HandleInterrupt(op *Op[W]) {
	pc := op.NextPC

	var target riscv.PrivLevel
	var cause W
	switch {
	case p.Mie&p.Mip != 0 && (p.Status.MIE || p.PrivLevel != riscv.PrivM):
		target = riscv.PrivM
		cause = lowestSetBit(p.Mie & p.Mip)
	case p.Sie&p.Sip != 0 && p.PrivLevel != riscv.PrivM &&
		(p.Status.SIE || p.PrivLevel == riscv.PrivU):
		target = riscv.PrivS
		cause = lowestSetBit(p.Sie & p.Sip)
	default:
		return
	}

	var tvec W
	if target == riscv.PrivM {
		tvec = p.Mtvec
	} else {
		tvec = p.Stvec
	}
	targetAddr := tvec &^ W(riscv.MtvecVectored)
	if tvec&W(riscv.MtvecVectored) != 0 {
		targetAddr += 4 * cause
	}

	if target == riscv.PrivM {
		p.Mcause = cause | riscv.IntrMask[W]()
		p.Mtval = 0
		p.Mepc = pc
		p.Status.MPP = p.PrivLevel
		p.Status.MPIE = p.Status.MIE
		p.Status.MIE = false
	} else {
		p.Scause = cause | riscv.IntrMask[W]()
		p.Stval = 0
		p.Sepc = pc
		p.Status.SPP = p.PrivLevel == riscv.PrivS
		p.Status.SPIE = p.Status.SIE
		p.Status.SIE = false
	}
	p.PrivLevel = target

	op.NextPC = targetAddr
}

func lowestSetBit[W Word](v W) W {
	for i := W(0); ; i++ {
		if v>>i&1 != 0 {
			return i
		}
	}
}

// SysOp completes a StageSysOp op: ecall traps into the environment-call
// cause of the current privilege level; mret and sret pop the saved status
// state and return to the saved PC, or raise an illegal-instruction trap
// when executed without the required privilege.
func (p *PrivilegeModule[W]) SysOp(op *Op[W]) {
	switch {
	case op.Sys.Ecall:
		op.Stage = StageTrap
		switch p.PrivLevel {
		case riscv.PrivU:
			op.Trap = TrapOp[W]{Cause: W(riscv.ExceptEnvCallU)}
		case riscv.PrivS:
			op.Trap = TrapOp[W]{Cause: W(riscv.ExceptEnvCallS)}
		default:
			op.Trap = TrapOp[W]{Cause: W(riscv.ExceptEnvCallM)}
		}
	case op.Sys.Mret:
		if p.PrivLevel != riscv.PrivM {
			op.Stage = StageTrap
			op.Trap = TrapOp[W]{Cause: W(riscv.ExceptIllegalInstr), Tval: W(op.Instr)}
			return
		}
		p.PrivLevel = p.Status.MPP
		p.Status.MIE = p.Status.MPIE
		p.Status.MPIE = true
		p.Status.MPP = riscv.PrivU
		op.Stage = StageRetire
		op.Retire = RetireOp[W]{}
		op.NextPC = p.Mepc
	case op.Sys.Sret:
		if p.PrivLevel == riscv.PrivU {
			op.Stage = StageTrap
			op.Trap = TrapOp[W]{Cause: W(riscv.ExceptIllegalInstr), Tval: W(op.Instr)}
			return
		}
		if p.Status.SPP {
			p.PrivLevel = riscv.PrivS
		} else {
			p.PrivLevel = riscv.PrivU
		}
		p.Status.SIE = p.Status.SPIE
		p.Status.SPIE = true
		p.Status.SPP = false
		op.Stage = StageRetire
		op.Retire = RetireOp[W]{}
		op.NextPC = p.Sepc
	}
}
