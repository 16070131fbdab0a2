package emu

import (
	"fmt"
	"os"

	"github.com/sarchlab/rvsim/vio"
)

// commitEvent reports whether an event type participates in difftest
// comparison. Commit events describe architectural effects; fetch-side and
// bus-side events may legitimately differ between implementations.
func commitEvent(t EventType) bool {
	switch t {
	case EventRegWrite, EventTrap, EventTrapRet:
		return true
	default:
		return false
	}
}

// SimpleDifftest drives a device-under-test and a reference model in
// lockstep and cross-checks the commit events they log. The DUT may retire
// zero, one, or many instructions per cycle; the REF is assumed to retire
// exactly one instruction per cycle, so the tester steps it until it has
// produced at least as many commit events as the DUT did.
//
// Each child owns its own event buffer; the tester maintains its own read
// cursor per child and never consumes events, which relies on the ring
// buffer's no-pop-front discipline.
type SimpleDifftest[W Word] struct {
	Dut CPU[W]
	Ref CPU[W]

	events   *vio.RingBuffer[Event[W]]
	dutIndex uint64
	refIndex uint64

	diffError bool
	warned    bool
}

// SimpleDifftestOption configures a SimpleDifftest.
type SimpleDifftestOption[W Word] func(*SimpleDifftest[W])

// WithDifftestEventBuffer attaches an event log to the tester itself. The
// compared commit stream and any divergence events are recorded there.
func WithDifftestEventBuffer[W Word](buf *vio.RingBuffer[Event[W]]) SimpleDifftestOption[W] {
	return func(d *SimpleDifftest[W]) {
		d.events = buf
	}
}

// NewSimpleDifftest creates a differential tester over a DUT and a REF.
func NewSimpleDifftest[W Word](dut, ref CPU[W], opts ...SimpleDifftestOption[W]) *SimpleDifftest[W] {
	d := &SimpleDifftest[W]{Dut: dut, Ref: ref}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiffError reports whether a divergence has been latched. The content of
// the divergence is recorded in the event buffer.
func (d *SimpleDifftest[W]) DiffError() bool { return d.diffError }

// Reset resets both children and the comparison cursors.
func (d *SimpleDifftest[W]) Reset(initPC W) {
	d.Dut.Reset(initPC)
	d.Ref.Reset(initPC)
	d.dutIndex = 0
	d.refIndex = 0
	if buf := d.Dut.EventBuffer(); buf != nil {
		d.dutIndex = buf.LastIndex()
	}
	if buf := d.Ref.EventBuffer(); buf != nil {
		d.refIndex = buf.LastIndex()
	}
	d.diffError = false
	d.warned = false
}

// NextCycle steps the DUT one cycle, aligns the REF to it, and compares
// the two commit-event streams. DUT order is canonical.
func (d *SimpleDifftest[W]) NextCycle() {
	dutBuf := d.Dut.EventBuffer()
	refBuf := d.Ref.EventBuffer()
	if dutBuf == nil || refBuf == nil {
		fmt.Fprintln(os.Stderr, "emu: difftest requires event buffers on both CPUs")
		d.diffError = true
		d.logError(EventDiffError, 0)
		return
	}

	d.Dut.NextCycle()
	dutEvents := d.collect(dutBuf, &d.dutIndex)

	var refEvents []Event[W]
	for len(refEvents) < len(dutEvents) && !d.Ref.Stopped() {
		d.Ref.NextInstruction()
		refEvents = append(refEvents, d.collect(refBuf, &d.refIndex)...)
	}

	// A halted DUT commits nothing more; let the REF run to its own halt.
	// A commit the DUT never made surfaces as a count mismatch below.
	if d.Dut.Stopped() {
		for !d.Ref.Stopped() && len(refEvents) == len(dutEvents) {
			d.Ref.NextInstruction()
			refEvents = append(refEvents, d.collect(refBuf, &d.refIndex)...)
		}
	}

	if len(dutEvents) != len(refEvents) {
		fmt.Fprintf(os.Stderr,
			"emu: difftest commit count mismatch: dut=%d ref=%d\n",
			len(dutEvents), len(refEvents))
		d.diffError = true
		d.logError(EventDiffError, d.Dut.PC())
		return
	}

	for i := range dutEvents {
		if dutEvents[i] != refEvents[i] {
			fmt.Fprintln(os.Stderr, "emu: difftest error:")
			fmt.Fprintln(os.Stderr, "  dut:", dutEvents[i])
			fmt.Fprintln(os.Stderr, "  ref:", refEvents[i])
			d.diffError = true
			d.logError(dutEvents[i].Type, d.Dut.PC())
			return
		}
		if d.events != nil {
			d.events.PushBack(dutEvents[i])
		}
	}

	if d.Dut.Stopped() != d.Ref.Stopped() && !d.warned {
		fmt.Fprintln(os.Stderr, "emu: difftest warning: only one CPU has stopped")
		d.warned = true
	}
}

// collect gathers the commit events appended to buf since the cursor and
// advances the cursor to the end of the buffer.
func (d *SimpleDifftest[W]) collect(buf *vio.RingBuffer[Event[W]], cursor *uint64) []Event[W] {
	var events []Event[W]
	for i := *cursor; i < buf.LastIndex(); i++ {
		if e := buf.At(i); commitEvent(e.Type) {
			events = append(events, e)
		}
	}
	*cursor = buf.LastIndex()
	return events
}

func (d *SimpleDifftest[W]) logError(offending EventType, pc W) {
	if d.events == nil {
		return
	}
	instr, _ := d.Dut.PmemPeek(pc, vio.WidthWord)
	d.events.PushBack(Event[W]{
		Type: EventDiffError,
		PC:   pc,
		V1:   W(offending),
		V2:   instr,
	})
}

// NextCycleN advances n cycles.
func (d *SimpleDifftest[W]) NextCycleN(n uint64) {
	for i := uint64(0); i < n; i++ {
		d.NextCycle()
	}
}

// NextInstruction advances one cycle.
func (d *SimpleDifftest[W]) NextInstruction() { d.NextCycle() }

// NextInstructionN advances n cycles.
func (d *SimpleDifftest[W]) NextInstructionN(n uint64) { d.NextCycleN(n) }

// Stopped reports whether both children have stopped or a divergence has
// been latched.
func (d *SimpleDifftest[W]) Stopped() bool {
	return d.diffError || (d.Dut.Stopped() && d.Ref.Stopped())
}

// NGpr returns the smaller register count of the two children, allowing a
// difftest to mix register-file sizes (for example RV32I against RV32E).
func (d *SimpleDifftest[W]) NGpr() uint8 {
	if d.Dut.NGpr() < d.Ref.NGpr() {
		return d.Dut.NGpr()
	}
	return d.Ref.NGpr()
}

// GprName delegates to the DUT.
func (d *SimpleDifftest[W]) GprName(addr uint8) string { return d.Dut.GprName(addr) }

// GprAddr delegates to the DUT.
func (d *SimpleDifftest[W]) GprAddr(name string) uint8 { return d.Dut.GprAddr(name) }

// PC delegates to the DUT.
func (d *SimpleDifftest[W]) PC() W { return d.Dut.PC() }

// GprFile delegates to the DUT.
func (d *SimpleDifftest[W]) GprFile() []W { return d.Dut.GprFile() }

// Gpr delegates to the DUT.
func (d *SimpleDifftest[W]) Gpr(addr uint8) W { return d.Dut.Gpr(addr) }

// VaddrToPaddr delegates to the DUT.
func (d *SimpleDifftest[W]) VaddrToPaddr(vaddr W) (W, bool) { return d.Dut.VaddrToPaddr(vaddr) }

// PmemPeek delegates to the DUT.
func (d *SimpleDifftest[W]) PmemPeek(addr W, width vio.Width) (W, bool) {
	return d.Dut.PmemPeek(addr, width)
}

// VmemPeek delegates to the DUT.
func (d *SimpleDifftest[W]) VmemPeek(addr W, width vio.Width) (W, bool) {
	return d.Dut.VmemPeek(addr, width)
}

// Trap delegates to the DUT.
func (d *SimpleDifftest[W]) Trap() (W, bool) { return d.Dut.Trap() }

// EventBuffer returns the tester's own event log.
func (d *SimpleDifftest[W]) EventBuffer() *vio.RingBuffer[Event[W]] { return d.events }
