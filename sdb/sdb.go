package sdb

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/vio"
)

// watchpoint is a watch expression together with its last observed value.
type watchpoint[W emu.Word] struct {
	str      string
	expr     []Token
	oldValue W
	hasOld   bool
}

// commandDef describes one debugger command: its handler, its name and
// aliases, and its help text.
type commandDef[W emu.Word] struct {
	run   func(args []string, s *Sdb[W], w io.Writer)
	names []string
	help  string
}

// Sdb is a command-line debugger over any CPU implementation. It keeps the
// breakpoint, watchpoint, and trap-stop state and executes the parsed
// commands. A command's output may be piped to an external process.
type Sdb[W emu.Word] struct {
	// Cpu is the processor being debugged.
	Cpu emu.CPU[W]

	isStopped        bool
	breakpoints      []W
	watchpoints      []watchpoint[W]
	breakpointOnTrap bool
}

// NewSdb creates a debugger over the given CPU.
func NewSdb[W emu.Word](cpu emu.CPU[W]) *Sdb[W] {
	return &Sdb[W]{Cpu: cpu}
}

// Stopped reports whether the debugger session has ended.
func (s *Sdb[W]) Stopped() bool { return s.isStopped }

// Prompt returns the command prompt.
func (s *Sdb[W]) Prompt() string { return "sdb> " }

func commands[W emu.Word]() []commandDef[W] {
	return []commandDef[W]{
		{cmdHelp[W], []string{"help", "h"},
			"help: Show help for commands\n" +
				"Usage:\n" +
				"  help [command]"},
		{cmdQuit[W], []string{"quit", "q"},
			"quit: Exit the debugger\n" +
				"Usage:\n" +
				"  quit"},
		{cmdContinue[W], []string{"continue", "c"},
			"continue: Continue execution until breakpoint, watchpoint, or program end\n" +
				"Usage:\n" +
				"  continue"},
		{cmdStep[W], []string{"step", "s", "si"},
			"step: Execute one or more instructions\n" +
				"Usage:\n" +
				"  step [n=1]"},
		{cmdStatus[W], []string{"status", "st", "regs", "r"},
			"status: Show current PC and general purpose registers\n" +
				"Usage:\n" +
				"  status"},
		{cmdExamine[W], []string{"examine", "x"},
			"examine: Dump memory\n" +
				"Usage:\n" +
				"  examine <base> <length> <word_sz>\n" +
				"  <base>     - Starting address (expression)\n" +
				"  <length>   - Number of words to display (expression)\n" +
				"  <word_sz>  - Word size in bytes (1, 2, 4, or 8)"},
		{cmdWatch[W], []string{"watch", "w"},
			"watch: Manage watchpoints\n" +
				"Usage:\n" +
				"  watch <expr> - Set a watchpoint on an expression\n" +
				"  watch ls     - List all watchpoints\n" +
				"  watch rm <n> - Remove watchpoint by index"},
		{cmdBreak[W], []string{"break", "b", "br"},
			"break: Manage breakpoints\n" +
				"Usage:\n" +
				"  break <addr>      - Set breakpoint at address\n" +
				"  break ls          - List all breakpoints\n" +
				"  break rm <n>      - Remove breakpoint by index\n" +
				"  break trap on|off - Enable/disable trap breakpoints"},
		{cmdEval[W], []string{"evaluate", "eval", "e", "expr"},
			"eval: Evaluate an expression\n" +
				"Usage:\n" +
				"  evaluate <expression>"},
		{cmdTrace[W], []string{"trace", "t", "log", "events"},
			"trace: show event logs\n" +
				"Usage:\n" +
				"  trace [instr] [mem] [func] [trap]"},
		{cmdReset[W], []string{"reset", "rst"},
			"reset: reset the cpu\n" +
				"Usage:\n" +
				"  reset <init_pc>\n" +
				"Note:\n" +
				"  This will not reset the content of the memory."},
	}
}

func showCommandHelp[W emu.Word](def commandDef[W], w io.Writer) {
	fmt.Fprintln(w, def.help)
	if len(def.names) > 1 {
		fmt.Fprintln(w, "Alias:")
		fmt.Fprintln(w, " ", strings.Join(def.names[1:], " "))
	}
}

func showCommandHelpByName[W emu.Word](name string, w io.Writer) {
	for _, def := range commands[W]() {
		for _, n := range def.names {
			if n == name {
				showCommandHelp(def, w)
				return
			}
		}
	}
}

// ExecuteCommand parses and runs one command line.
func (s *Sdb[W]) ExecuteCommand(cmd string) {
	tokens, ok := TokenizeCommand(cmd)
	if !ok {
		fmt.Fprintln(os.Stderr, "sdb: command syntax error")
		return
	}
	parsed, ok := ParseCommand(tokens)
	if !ok {
		fmt.Fprintln(os.Stderr, "sdb: command syntax error")
		fmt.Fprintln(os.Stderr, "Must be one of:\n<command> [arg]...\n<command> [arg]... | <pipe_command>")
		return
	}
	s.ExecuteParsed(parsed)
}

// ExecuteParsed runs a pre-parsed command.
func (s *Sdb[W]) ExecuteParsed(cmd Command) {
	if s.Cpu == nil {
		return
	}
	for _, def := range commands[W]() {
		for _, n := range def.names {
			if n != cmd.SdbCommand {
				continue
			}
			if cmd.HasPipe {
				runPiped(cmd.PipeCommand, func(w io.Writer) {
					def.run(cmd.Args, s, w)
				})
			} else {
				def.run(cmd.Args, s, os.Stdout)
			}
			return
		}
	}
	fmt.Fprintln(os.Stderr, "sdb: command not found")
}

// runPiped spawns the shell command and feeds it the output of f.
func runPiped(pipeCommand string, f func(w io.Writer)) {
	proc := exec.Command("/bin/sh", "-c", pipeCommand)
	proc.Stdout = os.Stdout
	proc.Stderr = os.Stderr
	stdin, err := proc.StdinPipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sdb: pipe failed: %v\n", err)
		return
	}
	if err := proc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "sdb: failed to spawn %q: %v\n", pipeCommand, err)
		return
	}
	f(stdin)
	_ = stdin.Close()
	_ = proc.Wait()
}

func cmdHelp[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) == 0 {
		for _, def := range commands[W]() {
			showCommandHelp(def, w)
			fmt.Fprintln(w)
		}
		return
	}
	showCommandHelpByName[W](args[0], w)
}

func cmdQuit[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) != 0 {
		showCommandHelpByName[W]("quit", w)
	}
	s.isStopped = true
}

func cmdContinue[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) != 0 {
		showCommandHelpByName[W]("continue", w)
		return
	}
	s.executeSteps(math.MaxUint64, w)
}

func cmdStep[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	n := uint64(1)
	if len(args) > 0 {
		v, ok := EvaluateExpression(strings.Join(args, " "), s.Cpu)
		if !ok {
			fmt.Fprintln(w, "sdb: invalid expression in arguments")
			return
		}
		n = uint64(v)
	}
	s.executeSteps(n, w)
}

func cmdStatus[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) != 0 {
		showCommandHelpByName[W]("status", w)
		return
	}
	digits := vio.WordBits[W]() / 4
	fmt.Fprintf(w, "  pc=0x%x\n", uint64(s.Cpu.PC()))
	for i := uint8(0); i < s.Cpu.NGpr(); i++ {
		fmt.Fprintf(w, "%4s=0x%0*x ", s.Cpu.GprName(i), digits, uint64(s.Cpu.Gpr(i)))
		if i%8 == 7 {
			fmt.Fprintln(w)
		}
	}
}

func cmdExamine[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) != 3 {
		showCommandHelpByName[W]("examine", w)
		return
	}
	base, ok1 := EvaluateExpression(args[0], s.Cpu)
	length, ok2 := EvaluateExpression(args[1], s.Cpu)
	wordSz, ok3 := EvaluateExpression(args[2], s.Cpu)
	if !ok1 || !ok2 || !ok3 {
		fmt.Fprintln(w, "sdb: invalid expression in arguments")
		return
	}
	width, ok := vio.WidthOf(uint64(wordSz))
	if !ok {
		fmt.Fprintln(w, "sdb: invalid word size (must be 1, 2, 4, or 8)")
		return
	}

	step := W(width)
	end := base + length*step
	for addr := base; addr < end; addr += step {
		if uint64(addr)%16 == 0 || addr == base {
			fmt.Fprintf(w, "0x%x:", uint64(addr))
		}
		if val, ok := s.Cpu.VmemPeek(addr, width); ok {
			fmt.Fprintf(w, " %0*x", int(width)*2, uint64(val))
		} else {
			fmt.Fprint(w, " ?")
		}
		if uint64(addr+step)%16 == 0 {
			fmt.Fprintln(w)
		}
	}
	if uint64(end)%16 != 0 {
		fmt.Fprintln(w)
	}
}

func cmdWatch[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) == 0 {
		showCommandHelpByName[W]("watch", w)
		return
	}

	switch args[0] {
	case "ls":
		if len(s.watchpoints) == 0 {
			fmt.Fprintln(w, "No watchpoints set")
			return
		}
		for i, wp := range s.watchpoints {
			fmt.Fprintf(w, "%3d: %s\n", i, wp.str)
		}
	case "rm":
		if len(args) != 2 {
			showCommandHelpByName[W]("watch", w)
			return
		}
		idx, ok := EvaluateExpression(args[1], s.Cpu)
		if !ok || uint64(idx) >= uint64(len(s.watchpoints)) {
			fmt.Fprintln(w, "sdb: invalid watchpoint index")
			return
		}
		s.watchpoints = append(s.watchpoints[:idx], s.watchpoints[idx+1:]...)
	default:
		str := strings.Join(args, " ")
		expr, ok := ParseExpression(TokenizeExpression(str))
		if !ok {
			fmt.Fprintln(w, "sdb: invalid expression")
			return
		}
		wp := watchpoint[W]{str: str, expr: expr}
		if v, ok := EvaluatePostfix(expr, s.Cpu); ok {
			wp.oldValue = v
			wp.hasOld = true
		}
		s.watchpoints = append(s.watchpoints, wp)
	}
}

func cmdBreak[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) == 0 {
		showCommandHelpByName[W]("break", w)
		return
	}

	switch args[0] {
	case "ls":
		if len(s.breakpoints) == 0 && !s.breakpointOnTrap {
			fmt.Fprintln(w, "No breakpoints set")
			return
		}
		for i, bp := range s.breakpoints {
			fmt.Fprintf(w, "%3d: 0x%x\n", i, uint64(bp))
		}
		if s.breakpointOnTrap {
			fmt.Fprintln(w, "Trap breakpoints enabled")
		}
	case "rm":
		if len(args) != 2 {
			showCommandHelpByName[W]("break", w)
			return
		}
		idx, ok := EvaluateExpression(args[1], s.Cpu)
		if !ok || uint64(idx) >= uint64(len(s.breakpoints)) {
			fmt.Fprintln(w, "sdb: invalid breakpoint index")
			return
		}
		s.breakpoints = append(s.breakpoints[:idx], s.breakpoints[idx+1:]...)
	case "trap":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			showCommandHelpByName[W]("break", w)
			return
		}
		s.breakpointOnTrap = args[1] == "on"
	default:
		addr, ok := EvaluateExpression(strings.Join(args, " "), s.Cpu)
		if !ok {
			fmt.Fprintln(w, "sdb: invalid expression")
			return
		}
		s.breakpoints = append(s.breakpoints, addr)
	}
}

func cmdEval[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) == 0 {
		showCommandHelpByName[W]("evaluate", w)
		return
	}
	v, ok := EvaluateExpression(strings.Join(args, " "), s.Cpu)
	if !ok {
		fmt.Fprintln(w, "sdb: invalid expression")
		return
	}
	fmt.Fprintf(w, "0x%x (%d)\n", uint64(v), uint64(v))
}

func cmdTrace[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	buf := s.Cpu.EventBuffer()
	if buf == nil {
		fmt.Fprintln(w, "sdb: event tracing is off")
		return
	}

	show := map[emu.EventType]bool{}
	enable := func(types ...emu.EventType) {
		for _, t := range types {
			show[t] = true
		}
	}
	if len(args) == 0 {
		enable(emu.EventIssue, emu.EventRegWrite, emu.EventLoad, emu.EventStore,
			emu.EventCall, emu.EventCallRet, emu.EventTrap, emu.EventTrapRet,
			emu.EventDiffError)
	}
	for _, arg := range args {
		switch arg {
		case "instr":
			enable(emu.EventIssue, emu.EventRegWrite)
		case "mem":
			enable(emu.EventLoad, emu.EventStore)
		case "func":
			enable(emu.EventCall, emu.EventCallRet)
		case "trap":
			enable(emu.EventTrap, emu.EventTrapRet, emu.EventDiffError)
		default:
			showCommandHelpByName[W]("trace", w)
			return
		}
	}

	for _, e := range buf.All() {
		if show[e.Type] {
			fmt.Fprintln(w, e)
		}
	}
}

func cmdReset[W emu.Word](args []string, s *Sdb[W], w io.Writer) {
	if len(args) == 0 {
		showCommandHelpByName[W]("reset", w)
		return
	}
	pc, ok := EvaluateExpression(strings.Join(args, " "), s.Cpu)
	if !ok {
		fmt.Fprintln(w, "sdb: invalid expression")
		return
	}
	s.Cpu.Reset(pc)
}

// executeSteps single-steps the CPU, stopping on CPU halt, breakpoint hit,
// watchpoint change, or (when enabled) trap delivery.
func (s *Sdb[W]) executeSteps(n uint64, w io.Writer) {
	for i := uint64(0); i < n; i++ {
		if s.Cpu.Stopped() {
			fmt.Fprintln(w, "The CPU has stopped.")
			return
		}
		s.Cpu.NextInstruction()
		if s.checkBreakpoints(w) || s.checkWatchpoints(w) || s.checkTrap(w) {
			return
		}
	}
}

func (s *Sdb[W]) checkBreakpoints(w io.Writer) bool {
	pc := s.Cpu.PC()
	for i, bp := range s.breakpoints {
		if bp == pc {
			fmt.Fprintf(w, "Breakpoint %d hit at 0x%x\n", i, uint64(pc))
			return true
		}
	}
	return false
}

func (s *Sdb[W]) checkWatchpoints(w io.Writer) bool {
	triggered := false
	for i := range s.watchpoints {
		wp := &s.watchpoints[i]
		v, ok := EvaluatePostfix(wp.expr, s.Cpu)
		if !ok {
			continue
		}
		if !wp.hasOld || v != wp.oldValue {
			if wp.hasOld {
				fmt.Fprintf(w, "Watchpoint %d: %s\n  0x%x -> 0x%x\n",
					i, wp.str, uint64(wp.oldValue), uint64(v))
				triggered = true
			}
			wp.oldValue = v
			wp.hasOld = true
		}
	}
	return triggered
}

func (s *Sdb[W]) checkTrap(w io.Writer) bool {
	if !s.breakpointOnTrap {
		return false
	}
	if cause, ok := s.Cpu.Trap(); ok {
		fmt.Fprintf(w, "Trap delivered: cause=0x%x\n", uint64(cause))
		return true
	}
	return false
}
