package vio

import (
	"bufio"
	"io"
)

// Console device request tags.
const (
	ConsoleRx        uint64 = 1 << 0 // reading from rx
	ConsoleTx        uint64 = 1 << 1 // writing to tx
	ConsolePrescaler uint64 = 1 << 2 // getting or setting the prescaler
)

// ConsoleFrontend implements the Frontend contract for the console device.
// It follows the behavior of the NEMU uart emulator: offset 0 is the rx
// byte on read and the tx byte on write, offset 1 is the status byte
// (bit 0 = tx ready, bit 1 = rx valid), offset 2 is a 16-bit prescaler that
// is accepted and ignored.
type ConsoleFrontend struct{}

// ResolveRead maps a console MMIO read to a device request.
func (ConsoleFrontend) ResolveRead(offset uint64, width Width) IOReq {
	if offset == 0 && width == WidthByte {
		return IOReq{IOReqRead, ConsoleRx}
	}
	if offset == 1 && width == WidthByte {
		return IOReq{IOReqIoctlGet, ConsoleRx | ConsoleTx}
	}
	return IOReq{IOReqInvalid, 0}
}

// ResolveWrite maps a console MMIO write to a device request.
func (ConsoleFrontend) ResolveWrite(offset uint64, width Width, data uint64) IOReq {
	if offset == 0 && width == WidthByte {
		return IOReq{IOReqWrite, ConsoleTx}
	}
	if offset == 2 && width == WidthHalf {
		return IOReq{IOReqIoctlSet, ConsolePrescaler}
	}
	return IOReq{IOReqInvalid, 0}
}

// IoctlGet reports the status byte. Tx is always ready on a software
// emulated console.
func (ConsoleFrontend) IoctlGet(b Backend, req uint64) uint64 {
	txReady := uint64(1)
	rxValid := uint64(0)
	if b.Poll(ConsoleRx) {
		rxValid = 1
	}
	return rxValid<<1 | txReady
}

// IoctlSet accepts and discards prescaler writes.
func (ConsoleFrontend) IoctlSet(b Backend, req uint64, value uint64) {}

// ConsoleBackend is a console backend over a Go reader/writer pair. Reads
// block on the reader, which makes simple guest programs that assume input
// is always available work.
type ConsoleBackend struct {
	in  *bufio.Reader
	out io.Writer

	input      uint64
	inputValid bool
}

// NewConsoleBackend creates a console backend reading from in and writing
// to out.
func NewConsoleBackend(in io.Reader, out io.Writer) *ConsoleBackend {
	return &ConsoleBackend{in: bufio.NewReader(in), out: out}
}

// Request returns the next input byte, blocking until one is available.
// End of input reads as an all-ones word.
func (b *ConsoleBackend) Request(req uint64) uint64 {
	if req != ConsoleRx {
		return 0
	}
	if b.inputValid {
		b.inputValid = false
		return b.input
	}
	c, err := b.in.ReadByte()
	if err != nil {
		return ^uint64(0)
	}
	return uint64(c)
}

// Poll blocks until an input byte is buffered and reports true.
func (b *ConsoleBackend) Poll(req uint64) bool {
	if req != ConsoleRx {
		return true
	}
	if b.inputValid {
		return true
	}
	c, err := b.in.ReadByte()
	if err != nil {
		b.input = ^uint64(0)
	} else {
		b.input = uint64(c)
	}
	b.inputValid = true
	return true
}

// Check reports whether an input byte is already buffered, without
// blocking.
func (b *ConsoleBackend) Check(req uint64) bool {
	if req != ConsoleRx {
		return true
	}
	return b.inputValid
}

// Put writes one output byte.
func (b *ConsoleBackend) Put(req uint64, data uint64) {
	if req == ConsoleTx {
		_, _ = b.out.Write([]byte{byte(data)})
	}
}
