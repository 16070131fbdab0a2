package vio

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ConsoleBackendTerm is a console backend over the host terminal. It puts
// stdin into raw mode so the guest sees keystrokes without OS-level echo or
// line buffering; the guest's console driver handles echo itself. Close
// must be called before the process exits to restore the terminal.
type ConsoleBackendTerm struct {
	inner    *ConsoleBackend
	fd       int
	oldState *term.State
}

// NewConsoleBackendTerm creates a raw-mode console backend on the process
// terminal. It fails if stdin is not a terminal.
func NewConsoleBackendTerm() (*ConsoleBackendTerm, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set raw mode: %w", err)
	}
	return &ConsoleBackendTerm{
		inner:    NewConsoleBackend(os.Stdin, os.Stdout),
		fd:       fd,
		oldState: oldState,
	}, nil
}

// Close restores the terminal state.
func (b *ConsoleBackendTerm) Close() error {
	if b.oldState == nil {
		return nil
	}
	err := term.Restore(b.fd, b.oldState)
	b.oldState = nil
	return err
}

// Request returns the next keystroke, blocking until one arrives.
func (b *ConsoleBackendTerm) Request(req uint64) uint64 { return b.inner.Request(req) }

// Poll blocks until a keystroke is buffered and reports true.
func (b *ConsoleBackendTerm) Poll(req uint64) bool { return b.inner.Poll(req) }

// Check reports whether a keystroke is already buffered.
func (b *ConsoleBackendTerm) Check(req uint64) bool { return b.inner.Check(req) }

// Put writes one output byte to the terminal.
func (b *ConsoleBackendTerm) Put(req uint64, data uint64) { b.inner.Put(req, data) }
