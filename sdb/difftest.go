package sdb

import (
	"fmt"
	"os"

	"github.com/sarchlab/rvsim/emu"
)

// SdbDifftest extends the debugger with differential-testing focus
// switching. The extra commands dut, ref, and difftest point the debugger
// at one of the three processors; the prompt names the current focus.
type SdbDifftest[W emu.Word] struct {
	*Sdb[W]

	// Difftest is the differential tester being driven.
	Difftest *emu.SimpleDifftest[W]
}

// NewSdbDifftest creates a debugger focused on the differential tester.
func NewSdbDifftest[W emu.Word](difftest *emu.SimpleDifftest[W]) *SdbDifftest[W] {
	return &SdbDifftest[W]{
		Sdb:      NewSdb[W](difftest),
		Difftest: difftest,
	}
}

// ExecuteParsed runs a pre-parsed command, handling the focus-switch
// commands before delegating to the base debugger.
func (s *SdbDifftest[W]) ExecuteParsed(cmd Command) {
	switch {
	case s.Difftest == nil:
		fmt.Fprintln(os.Stderr, "sdb: SdbDifftest.Difftest cannot be nil")
	case cmd.SdbCommand == "dut":
		s.Cpu = s.Difftest.Dut
	case cmd.SdbCommand == "ref":
		s.Cpu = s.Difftest.Ref
	case cmd.SdbCommand == "difftest":
		s.Cpu = s.Difftest
	default:
		s.Sdb.ExecuteParsed(cmd)
	}
}

// ExecuteCommand parses and runs one command line.
func (s *SdbDifftest[W]) ExecuteCommand(cmd string) {
	tokens, ok := TokenizeCommand(cmd)
	if !ok {
		fmt.Fprintln(os.Stderr, "sdb: command syntax error")
		return
	}
	parsed, ok := ParseCommand(tokens)
	if !ok {
		fmt.Fprintln(os.Stderr, "sdb: command syntax error")
		return
	}
	s.ExecuteParsed(parsed)
}

// Prompt names the current focus.
func (s *SdbDifftest[W]) Prompt() string {
	switch {
	case s.Difftest == nil || s.Cpu == nil:
		return "sdb|error> "
	case s.Cpu == emu.CPU[W](s.Difftest):
		return "sdb|difftest> "
	case s.Cpu == s.Difftest.Dut:
		return "sdb|dut> "
	case s.Cpu == s.Difftest.Ref:
		return "sdb|ref> "
	default:
		return "sdb|error> "
	}
}
