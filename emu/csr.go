package emu

import "github.com/sarchlab/rvsim/riscv"

// misaValue returns the implementation's ISA string: the I, M and U
// extension bits with the XLEN field in the top two bits. The S bit is not
// set.
func misaValue[W Word]() W {
	if vioWordBits[W]() == 32 {
		return W(uint64(0x40101100))
	}
	v := uint64(2)<<62 | 0x101100
	return W(v)
}

// csrCell resolves a CSR address to its backing cell and the mask of bits
// writable by instruction-level CSR operations. Bits outside the mask keep
// their current value. The CSRs with structured or computed views
// (mstatus, sstatus, misa) are handled by csrRead/csrWrite directly.
func (p *PrivilegeModule[W]) csrCell(addr uint16) (cell *W, wpriMask W, ok bool) {
	full := ^W(0)
	low16 := W(0xffff)
	switch addr {
	case riscv.CsrMepc:
		return &p.Mepc, full &^ 1, true
	case riscv.CsrSepc:
		return &p.Sepc, full &^ 1, true
	case riscv.CsrMtvec:
		return &p.Mtvec, full, true
	case riscv.CsrStvec:
		return &p.Stvec, full, true
	case riscv.CsrMcause:
		return &p.Mcause, full, true
	case riscv.CsrScause:
		return &p.Scause, full, true
	case riscv.CsrMtval:
		return &p.Mtval, full, true
	case riscv.CsrStval:
		return &p.Stval, full, true
	case riscv.CsrMscratch:
		return &p.Mscratch, full, true
	case riscv.CsrSscratch:
		return &p.Sscratch, full, true
	case riscv.CsrMedeleg:
		return &p.Medeleg, full, true
	case riscv.CsrMideleg:
		return &p.Mideleg, full, true
	case riscv.CsrMie:
		return &p.Mie, low16, true
	case riscv.CsrSie:
		return &p.Sie, low16, true
	case riscv.CsrMip:
		return &p.Mip, low16, true
	case riscv.CsrSip:
		return &p.Sip, low16, true
	default:
		return nil, 0, false
	}
}

func (p *PrivilegeModule[W]) packMstatus() W {
	v := W(p.Status.MPP) << 11
	if p.Status.SPP {
		v |= W(riscv.MstatusSPP)
	}
	if p.Status.MPIE {
		v |= W(riscv.MstatusMPIE)
	}
	if p.Status.SPIE {
		v |= W(riscv.MstatusSPIE)
	}
	if p.Status.MIE {
		v |= W(riscv.MstatusMIE)
	}
	if p.Status.SIE {
		v |= W(riscv.MstatusSIE)
	}
	return v
}

func (p *PrivilegeModule[W]) unpackMstatus(v W) {
	mpp := riscv.PrivLevel(v >> 11 & 3)
	// Coerce reserved MPP patterns to M.
	if mpp != riscv.PrivU && mpp != riscv.PrivS {
		mpp = riscv.PrivM
	}
	p.Status.MPP = mpp
	p.Status.SPP = v&W(riscv.MstatusSPP) != 0
	p.Status.MPIE = v&W(riscv.MstatusMPIE) != 0
	p.Status.SPIE = v&W(riscv.MstatusSPIE) != 0
	p.Status.MIE = v&W(riscv.MstatusMIE) != 0
	p.Status.SIE = v&W(riscv.MstatusSIE) != 0
}

func (p *PrivilegeModule[W]) packSstatus() W {
	var v W
	if p.Status.SPP {
		v |= W(riscv.MstatusSPP)
	}
	if p.Status.SPIE {
		v |= W(riscv.MstatusSPIE)
	}
	if p.Status.SIE {
		v |= W(riscv.MstatusSIE)
	}
	return v
}

func (p *PrivilegeModule[W]) unpackSstatus(v W) {
	p.Status.SPP = v&W(riscv.MstatusSPP) != 0
	p.Status.SPIE = v&W(riscv.MstatusSPIE) != 0
	p.Status.SIE = v&W(riscv.MstatusSIE) != 0
}

// CsrRead returns the current value of a CSR. The second return value is
// false for unimplemented CSRs.
func (p *PrivilegeModule[W]) CsrRead(addr uint16) (W, bool) {
	switch addr {
	case riscv.CsrMisa:
		return misaValue[W](), true
	case riscv.CsrMstatus:
		return p.packMstatus(), true
	case riscv.CsrSstatus:
		return p.packSstatus(), true
	}
	cell, _, ok := p.csrCell(addr)
	if !ok {
		return 0, false
	}
	return *cell, true
}

// csrWrite stores a value into a CSR, honoring its writable-bit mask.
func (p *PrivilegeModule[W]) csrWrite(addr uint16, value W) {
	switch addr {
	case riscv.CsrMisa:
		// Read-only by mask: the write is accepted and ignored.
		return
	case riscv.CsrMstatus:
		p.unpackMstatus(value)
		return
	case riscv.CsrSstatus:
		p.unpackSstatus(value)
		return
	}
	cell, mask, ok := p.csrCell(addr)
	if !ok {
		return
	}
	*cell = *cell&^mask | value&mask
}

// CsrOp completes a StageCsrOp op. Read access requires the current
// privilege to be at least the level encoded in addr[9:8]; writes
// additionally require addr[11:10] != 0b11, which marks the read-only CSR
// space. Violations and unimplemented CSRs raise illegal-instruction traps
// with the raw instruction as tval. The retiring value is the CSR's
// pre-update value.
func (p *PrivilegeModule[W]) CsrOp(op *Op[W]) {
	c := op.Csr
	illegal := func() {
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptIllegalInstr), Tval: W(op.Instr)}
	}

	readAccess := uint8(p.PrivLevel) >= uint8(c.Addr>>8&3)
	if c.Read && !readAccess {
		illegal()
		return
	}
	writeAccess := readAccess && c.Addr>>10 != 3
	if (c.Write || c.Set || c.Clear) && !writeAccess {
		illegal()
		return
	}

	old, ok := p.CsrRead(c.Addr)
	if !ok {
		illegal()
		return
	}

	switch {
	case c.Write:
		p.csrWrite(c.Addr, c.Value)
	case c.Set:
		p.csrWrite(c.Addr, old|c.Value)
	case c.Clear:
		p.csrWrite(c.Addr, old&^c.Value)
	}

	op.Stage = StageRetire
	op.Retire = RetireOp[W]{Rd: c.Rd, Value: old}
}
