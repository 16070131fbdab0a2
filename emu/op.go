// Package emu provides the functional RISC-V simulation cores: the staged
// operation record, the unprivileged user core, the privilege module, the
// memory view, the system CPU that binds them together, and the
// differential tester.
package emu

import (
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/vio"
)

// Word is the machine word of a simulated core.
type Word = vio.Word

// Stage tags the state of an in-flight instruction within one cycle.
type Stage uint8

// Pipeline stages. An Op starts a cycle in StageFetch, moves through a
// subset of the stages, and always ends the cycle in StageRetire.
const (
	StageFetch Stage = iota
	StageDecode
	StageRetire
	StageLoad
	StageStore
	StageTrap
	StageSysOp
	StageCsrOp
)

// RetireOp carries the register writeback of a retiring instruction.
type RetireOp[W Word] struct {
	Rd    uint8
	Value W
}

// LoadOp describes a pending memory load.
type LoadOp[W Word] struct {
	Addr       W
	Width      vio.Width
	SignExtend bool
	Rd         uint8
}

// StoreOp describes a pending memory store.
type StoreOp[W Word] struct {
	Addr  W
	Width vio.Width
	Data  W
}

// TrapOp describes a trap to deliver.
type TrapOp[W Word] struct {
	Cause W
	Tval  W
}

// SysOp describes a pending system operation.
type SysOp struct {
	Ecall bool
	Mret  bool
	Sret  bool
}

// CsrOp describes a pending CSR operation.
type CsrOp[W Word] struct {
	Addr  uint16
	Rd    uint8
	Read  bool
	Write bool
	Set   bool
	Clear bool
	Value W
}

// Op is the staged record that carries an instruction through fetch,
// decode, execute, privileged completion, and retire within a single
// cycle. The user core fills in the unprivileged stages; memory, CSR, and
// system operations are handed to the privilege module, which is also
// responsible for MMIO and address translation. This separation keeps the
// unprivileged interpreter free of side effects on the CSR and memory
// buses, which is what lets the differential tester compare commit events
// alone.
//
// Only the payload named by Stage is meaningful.
type Op[W Word] struct {
	Stage  Stage
	PC     W
	NextPC W
	Instr  uint32

	Decode insts.Decode
	Retire RetireOp[W]
	Load   LoadOp[W]
	Store  StoreOp[W]
	Trap   TrapOp[W]
	Sys    SysOp
	Csr    CsrOp[W]
}
