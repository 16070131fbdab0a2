// Package insts provides RISC-V instruction definitions and decoding for
// the RV32IM and RV64IM instruction sets plus the Zicsr and privileged
// return instructions.
package insts

// Dispatch identifies the operation a decoded instruction performs.
type Dispatch uint8

// Dispatch tags.
const (
	// Arithmetic and logical.
	OpAdd Dispatch = iota
	OpSub
	OpSll
	OpSlt
	OpSltu
	OpXor
	OpSrl
	OpSra
	OpOr
	OpAnd
	// Immediate operations.
	OpAddi
	OpSlti
	OpSltiu
	OpXori
	OpOri
	OpAndi
	OpSlli
	OpSrli
	OpSrai
	// Memory operations.
	OpLb
	OpLh
	OpLw
	OpLbu
	OpLhu
	OpSb
	OpSh
	OpSw
	// Control flow.
	OpJal
	OpJalr
	OpBeq
	OpBne
	OpBlt
	OpBge
	OpBltu
	OpBgeu
	// Upper immediate.
	OpLui
	OpAuipc
	// Multiply/divide.
	OpMul
	OpMulh
	OpMulhsu
	OpMulhu
	OpDiv
	OpDivu
	OpRem
	OpRemu
	// System.
	OpEcall
	OpEbreak
	OpMret
	OpSret
	// RV64 additions.
	OpLwu
	OpLd
	OpSd
	OpAddiw
	OpSlliw
	OpSrliw
	OpSraiw
	OpAddw
	OpSubw
	OpSllw
	OpSrlw
	OpSraw
	OpMulw
	OpDivw
	OpDivuw
	OpRemw
	OpRemuw
	// CSR operations.
	OpCsrrw
	OpCsrrs
	OpCsrrc
	OpCsrrwi
	OpCsrrsi
	OpCsrrci
	// Invalid instruction.
	OpInvalid
)

// Decode is a decoded RISC-V instruction: the dispatch tag, the extracted
// immediate, and the register operands named by the encoding format.
// Operands absent from the format are zero.
type Decode struct {
	Imm      int32
	Dispatch Dispatch
	Rs1      uint8
	Rs2      uint8
	Rd       uint8
}
