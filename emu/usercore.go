package emu

import (
	"math"
	"math/bits"

	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/riscv"
	"github.com/sarchlab/rvsim/vio"
)

// UserCore holds the unprivileged architectural state of a hart: the 32
// general purpose registers. Its interpreter rewrites a decoded Op into
// the stage the privilege module should complete: plain arithmetic goes
// straight to StageRetire, while memory, CSR, and system operations are
// described but not performed. The user core touches no CSR and no bus.
type UserCore[W Word] struct {
	Gpr [32]W
}

// Reset zeroes the register file.
func (c *UserCore[W]) Reset() {
	for i := range c.Gpr {
		c.Gpr[i] = 0
	}
}

// Decode rewrites op from StageFetch to StageDecode.
func Decode[W Word](op *Op[W]) {
	op.Decode = insts.DecodeInstr(op.Instr)
	op.Stage = StageDecode
}

func (c *UserCore[W]) invalidInstruction(op *Op[W]) {
	op.Stage = StageTrap
	op.Trap = TrapOp[W]{Cause: W(riscv.ExceptIllegalInstr), Tval: W(op.Instr)}
}

// Execute rewrites op from StageDecode to the stage describing its effect.
// Arithmetic retires immediately; loads, stores, CSR and system operations
// are filled in for the privilege module to complete.
func (c *UserCore[W]) Execute(op *Op[W]) {
	is64 := vioWordBits[W]() == 64
	d := op.Decode
	imm := immWord[W](d.Imm)

	op.Stage = StageRetire
	if op.Instr&3 == 3 {
		op.NextPC = op.PC + 4
	} else {
		op.NextPC = op.PC + 2
	}
	op.Retire = RetireOp[W]{Rd: d.Rd}

	switch d.Dispatch {
	// Arithmetic and logical.
	case insts.OpAdd:
		op.Retire.Value = c.Gpr[d.Rs1] + c.Gpr[d.Rs2]
	case insts.OpSub:
		op.Retire.Value = c.Gpr[d.Rs1] - c.Gpr[d.Rs2]
	case insts.OpSll:
		op.Retire.Value = c.Gpr[d.Rs1] << (c.Gpr[d.Rs2] & shamtMask[W]())
	case insts.OpSlt:
		op.Retire.Value = boolWord[W](signed(c.Gpr[d.Rs1]) < signed(c.Gpr[d.Rs2]))
	case insts.OpSltu:
		op.Retire.Value = boolWord[W](c.Gpr[d.Rs1] < c.Gpr[d.Rs2])
	case insts.OpXor:
		op.Retire.Value = c.Gpr[d.Rs1] ^ c.Gpr[d.Rs2]
	case insts.OpSrl:
		op.Retire.Value = c.Gpr[d.Rs1] >> (c.Gpr[d.Rs2] & shamtMask[W]())
	case insts.OpSra:
		op.Retire.Value = W(signed(c.Gpr[d.Rs1]) >> (c.Gpr[d.Rs2] & shamtMask[W]()))
	case insts.OpOr:
		op.Retire.Value = c.Gpr[d.Rs1] | c.Gpr[d.Rs2]
	case insts.OpAnd:
		op.Retire.Value = c.Gpr[d.Rs1] & c.Gpr[d.Rs2]

	// Immediate operations.
	case insts.OpAddi:
		op.Retire.Value = c.Gpr[d.Rs1] + imm
	case insts.OpSlti:
		op.Retire.Value = boolWord[W](signed(c.Gpr[d.Rs1]) < signed(imm))
	case insts.OpSltiu:
		op.Retire.Value = boolWord[W](c.Gpr[d.Rs1] < imm)
	case insts.OpXori:
		op.Retire.Value = c.Gpr[d.Rs1] ^ imm
	case insts.OpOri:
		op.Retire.Value = c.Gpr[d.Rs1] | imm
	case insts.OpAndi:
		op.Retire.Value = c.Gpr[d.Rs1] & imm
	case insts.OpSlli:
		op.Retire.Value = c.Gpr[d.Rs1] << (imm & shamtMask[W]())
	case insts.OpSrli:
		op.Retire.Value = c.Gpr[d.Rs1] >> (imm & shamtMask[W]())
	case insts.OpSrai:
		op.Retire.Value = W(signed(c.Gpr[d.Rs1]) >> (imm & shamtMask[W]()))

	// Memory operations.
	case insts.OpLb:
		op.Stage = StageLoad
		op.Load = LoadOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthByte, SignExtend: true, Rd: d.Rd}
	case insts.OpLh:
		op.Stage = StageLoad
		op.Load = LoadOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthHalf, SignExtend: true, Rd: d.Rd}
	case insts.OpLw:
		op.Stage = StageLoad
		op.Load = LoadOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthWord, SignExtend: true, Rd: d.Rd}
	case insts.OpLbu:
		op.Stage = StageLoad
		op.Load = LoadOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthByte, SignExtend: false, Rd: d.Rd}
	case insts.OpLhu:
		op.Stage = StageLoad
		op.Load = LoadOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthHalf, SignExtend: false, Rd: d.Rd}
	case insts.OpSb:
		op.Stage = StageStore
		op.Store = StoreOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthByte, Data: vio.ZeroTruncate(c.Gpr[d.Rs2], vio.WidthByte)}
	case insts.OpSh:
		op.Stage = StageStore
		op.Store = StoreOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthHalf, Data: vio.ZeroTruncate(c.Gpr[d.Rs2], vio.WidthHalf)}
	case insts.OpSw:
		op.Stage = StageStore
		op.Store = StoreOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthWord, Data: vio.ZeroTruncate(c.Gpr[d.Rs2], vio.WidthWord)}

	// Control flow.
	case insts.OpJal:
		op.Retire.Value = op.NextPC
		op.NextPC = op.PC + imm
	case insts.OpJalr:
		op.Retire.Value = op.NextPC
		op.NextPC = (c.Gpr[d.Rs1] + imm) &^ W(1)
	case insts.OpBeq:
		op.Retire = RetireOp[W]{}
		if c.Gpr[d.Rs1] == c.Gpr[d.Rs2] {
			op.NextPC = op.PC + imm
		}
	case insts.OpBne:
		op.Retire = RetireOp[W]{}
		if c.Gpr[d.Rs1] != c.Gpr[d.Rs2] {
			op.NextPC = op.PC + imm
		}
	case insts.OpBlt:
		op.Retire = RetireOp[W]{}
		if signed(c.Gpr[d.Rs1]) < signed(c.Gpr[d.Rs2]) {
			op.NextPC = op.PC + imm
		}
	case insts.OpBge:
		op.Retire = RetireOp[W]{}
		if signed(c.Gpr[d.Rs1]) >= signed(c.Gpr[d.Rs2]) {
			op.NextPC = op.PC + imm
		}
	case insts.OpBltu:
		op.Retire = RetireOp[W]{}
		if c.Gpr[d.Rs1] < c.Gpr[d.Rs2] {
			op.NextPC = op.PC + imm
		}
	case insts.OpBgeu:
		op.Retire = RetireOp[W]{}
		if c.Gpr[d.Rs1] >= c.Gpr[d.Rs2] {
			op.NextPC = op.PC + imm
		}

	// Upper immediate.
	case insts.OpLui:
		op.Retire.Value = imm
	case insts.OpAuipc:
		op.Retire.Value = op.PC + imm

	// Multiply/divide.
	case insts.OpMul:
		op.Retire.Value = c.Gpr[d.Rs1] * c.Gpr[d.Rs2]
	case insts.OpMulh:
		op.Retire.Value = c.mulh(c.Gpr[d.Rs1], c.Gpr[d.Rs2], true, true)
	case insts.OpMulhsu:
		op.Retire.Value = c.mulh(c.Gpr[d.Rs1], c.Gpr[d.Rs2], true, false)
	case insts.OpMulhu:
		op.Retire.Value = c.mulh(c.Gpr[d.Rs1], c.Gpr[d.Rs2], false, false)
	case insts.OpDiv:
		a, b := signed(c.Gpr[d.Rs1]), signed(c.Gpr[d.Rs2])
		switch {
		case b == 0:
			op.Retire.Value = ^W(0)
		case overflowDiv[W](a, b):
			op.Retire.Value = W(a)
		default:
			op.Retire.Value = W(a / b)
		}
	case insts.OpDivu:
		a, b := c.Gpr[d.Rs1], c.Gpr[d.Rs2]
		if b == 0 {
			op.Retire.Value = ^W(0)
		} else {
			op.Retire.Value = a / b
		}
	case insts.OpRem:
		a, b := signed(c.Gpr[d.Rs1]), signed(c.Gpr[d.Rs2])
		switch {
		case b == 0:
			op.Retire.Value = W(a)
		case overflowDiv[W](a, b):
			op.Retire.Value = 0
		default:
			op.Retire.Value = W(a % b)
		}
	case insts.OpRemu:
		a, b := c.Gpr[d.Rs1], c.Gpr[d.Rs2]
		if b == 0 {
			op.Retire.Value = a
		} else {
			op.Retire.Value = a % b
		}

	// System.
	case insts.OpEcall:
		op.Stage = StageSysOp
		op.Sys = SysOp{Ecall: true}
	case insts.OpEbreak:
		op.Stage = StageTrap
		op.Trap = TrapOp[W]{Cause: W(riscv.ExceptBreakpoint), Tval: op.PC}
	case insts.OpMret:
		op.Stage = StageSysOp
		op.Sys = SysOp{Mret: true}
	case insts.OpSret:
		op.Stage = StageSysOp
		op.Sys = SysOp{Sret: true}

	// CSR operations.
	case insts.OpCsrrw:
		op.Stage = StageCsrOp
		op.Csr = CsrOp[W]{
			Addr: uint16(d.Imm) & 0xfff, Rd: d.Rd,
			Read: d.Rd != 0, Write: true,
			Value: c.Gpr[d.Rs1],
		}
	case insts.OpCsrrs:
		op.Stage = StageCsrOp
		op.Csr = CsrOp[W]{
			Addr: uint16(d.Imm) & 0xfff, Rd: d.Rd,
			Read: true, Set: d.Rs1 != 0,
			Value: c.Gpr[d.Rs1],
		}
	case insts.OpCsrrc:
		op.Stage = StageCsrOp
		op.Csr = CsrOp[W]{
			Addr: uint16(d.Imm) & 0xfff, Rd: d.Rd,
			Read: true, Clear: d.Rs1 != 0,
			Value: c.Gpr[d.Rs1],
		}
	case insts.OpCsrrwi:
		op.Stage = StageCsrOp
		op.Csr = CsrOp[W]{
			Addr: uint16(d.Imm) & 0xfff, Rd: d.Rd,
			Read: d.Rd != 0, Write: true,
			Value: W(d.Rs1),
		}
	case insts.OpCsrrsi:
		op.Stage = StageCsrOp
		op.Csr = CsrOp[W]{
			Addr: uint16(d.Imm) & 0xfff, Rd: d.Rd,
			Read: true, Set: d.Rs1 != 0,
			Value: W(d.Rs1),
		}
	case insts.OpCsrrci:
		op.Stage = StageCsrOp
		op.Csr = CsrOp[W]{
			Addr: uint16(d.Imm) & 0xfff, Rd: d.Rd,
			Read: true, Clear: d.Rs1 != 0,
			Value: W(d.Rs1),
		}

	// RV64-only instructions; a 32-bit core rejects them here.
	case insts.OpLwu:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Stage = StageLoad
		op.Load = LoadOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthWord, SignExtend: false, Rd: d.Rd}
	case insts.OpLd:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Stage = StageLoad
		op.Load = LoadOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthDword, SignExtend: true, Rd: d.Rd}
	case insts.OpSd:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Stage = StageStore
		op.Store = StoreOp[W]{Addr: c.Gpr[d.Rs1] + imm, Width: vio.WidthDword, Data: c.Gpr[d.Rs2]}
	case insts.OpAddiw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1])) + d.Imm))
	case insts.OpSlliw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1]) << (d.Imm & 0x1f))))
	case insts.OpSrliw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1]) >> (d.Imm & 0x1f))))
	case insts.OpSraiw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1])) >> (d.Imm & 0x1f)))
	case insts.OpAddw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1])) + int32(uint32(c.Gpr[d.Rs2]))))
	case insts.OpSubw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1])) - int32(uint32(c.Gpr[d.Rs2]))))
	case insts.OpSllw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1]) << (c.Gpr[d.Rs2] & 0x1f))))
	case insts.OpSrlw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1]) >> (c.Gpr[d.Rs2] & 0x1f))))
	case insts.OpSraw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1])) >> (c.Gpr[d.Rs2] & 0x1f)))
	case insts.OpMulw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		op.Retire.Value = W(int64(int32(uint32(c.Gpr[d.Rs1]) * uint32(c.Gpr[d.Rs2]))))
	case insts.OpDivw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		a, b := int32(uint32(c.Gpr[d.Rs1])), int32(uint32(c.Gpr[d.Rs2]))
		switch {
		case b == 0:
			op.Retire.Value = ^W(0)
		case a == math.MinInt32 && b == -1:
			op.Retire.Value = W(int64(a))
		default:
			op.Retire.Value = W(int64(a / b))
		}
	case insts.OpDivuw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		a, b := uint32(c.Gpr[d.Rs1]), uint32(c.Gpr[d.Rs2])
		if b == 0 {
			op.Retire.Value = ^W(0)
		} else {
			op.Retire.Value = W(int64(int32(a / b)))
		}
	case insts.OpRemw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		a, b := int32(uint32(c.Gpr[d.Rs1])), int32(uint32(c.Gpr[d.Rs2]))
		switch {
		case b == 0:
			op.Retire.Value = W(int64(a))
		case a == math.MinInt32 && b == -1:
			op.Retire.Value = 0
		default:
			op.Retire.Value = W(int64(a % b))
		}
	case insts.OpRemuw:
		if !is64 {
			c.invalidInstruction(op)
			break
		}
		a, b := uint32(c.Gpr[d.Rs1]), uint32(c.Gpr[d.Rs2])
		if b == 0 {
			op.Retire.Value = W(int64(int32(a)))
		} else {
			op.Retire.Value = W(int64(int32(a % b)))
		}

	default:
		c.invalidInstruction(op)
	}
}

// mulh computes the upper word of the full-width product. On 64-bit cores
// the product is 128 bits wide, built from the unsigned product with sign
// corrections.
func (c *UserCore[W]) mulh(a, b W, signA, signB bool) W {
	if vioWordBits[W]() == 32 {
		var wa, wb int64
		if signA {
			wa = int64(int32(uint32(a)))
		} else {
			wa = int64(uint32(a))
		}
		if signB {
			wb = int64(int32(uint32(b)))
		} else {
			wb = int64(uint32(b))
		}
		return W(uint64(wa*wb) >> 32)
	}

	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if signA && signed(a) < 0 {
		hi -= uint64(b)
	}
	if signB && signed(b) < 0 {
		hi -= uint64(a)
	}
	return W(hi)
}

// overflowDiv reports the signed division overflow case: the most negative
// word divided by minus one.
func overflowDiv[W Word](a, b int64) bool {
	if b != -1 {
		return false
	}
	if vioWordBits[W]() == 32 {
		return a == math.MinInt32
	}
	return a == math.MinInt64
}

func boolWord[W Word](b bool) W {
	if b {
		return 1
	}
	return 0
}
