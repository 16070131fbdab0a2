package emu

import "fmt"

// EventType classifies a commit event.
type EventType uint8

// Event types. The meaning of an event's V1 and V2 fields depends on the
// type; see the String method for the field labels.
const (
	EventIssue EventType = iota
	EventRegWrite
	EventLoad
	EventStore
	EventCall
	EventCallRet
	EventTrap
	EventTrapRet
	EventDiffError
	numEventTypes
)

// String returns the name of the event type.
func (t EventType) String() string {
	switch t {
	case EventIssue:
		return "issue"
	case EventRegWrite:
		return "reg_write"
	case EventLoad:
		return "load"
	case EventStore:
		return "store"
	case EventCall:
		return "call"
	case EventCallRet:
		return "call_ret"
	case EventTrap:
		return "trap"
	case EventTrapRet:
		return "trap_ret"
	case EventDiffError:
		return "diff_error"
	default:
		return "unknown"
	}
}

// Event is one entry of a CPU's commit log, consumed by the trace command
// and the differential tester.
type Event[W Word] struct {
	Type EventType
	PC   W
	V1   W
	V2   W
}

// labels returns the field names of V1 and V2 for the event type.
func (e Event[W]) labels() (string, string) {
	switch e.Type {
	case EventIssue:
		return "instr", "0"
	case EventRegWrite:
		return "rd_addr", "rd_data"
	case EventLoad, EventStore:
		return "addr", "data"
	case EventCall, EventCallRet:
		return "target", "sp"
	case EventTrap:
		return "cause", "tval"
	case EventTrapRet:
		return "target", "0"
	case EventDiffError:
		return "err_type", "instr"
	default:
		return "val1", "val2"
	}
}

// String renders the event with type-specific field labels.
func (e Event[W]) String() string {
	digits := vioWordBits[W]() / 4
	l1, l2 := e.labels()
	return fmt.Sprintf("%-10s pc:0x%0*x %-8s:0x%0*x %-8s:0x%0*x",
		e.Type, digits, uint64(e.PC), l1, digits, uint64(e.V1), l2, digits, uint64(e.V2))
}
