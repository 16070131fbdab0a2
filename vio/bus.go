package vio

import (
	"fmt"
	"os"
)

// IOAgent is the MMIO interface handed to a simulated processor.
type IOAgent interface {
	// Read performs a read on the bus. The second return value is false if
	// no device claims the address or the device rejects the request.
	Read(addr uint64, width Width) (uint64, bool)

	// Write performs a write on the bus, returning whether it succeeded.
	Write(addr uint64, width Width, data uint64) bool
}

// Device describes one MMIO device attached to a dispatcher: its frontend,
// its backend, and the address range it occupies on the bus.
type Device struct {
	Frontend  Frontend
	Backend   Backend
	AddrBegin uint64
	ByteSpan  uint64
}

type readRequest struct {
	addr  uint64
	width Width
	data  uint64
	ok    bool
}

type writeRequest struct {
	addr    uint64
	width   Width
	data    uint64
	success bool
}

type boundDevice struct {
	port      *Port
	addrBegin uint64
	byteSpan  uint64
}

// Dispatcher manages the MMIO devices connected to a shared address bus.
// It decodes addresses, routes transactions, and memoizes the result of
// each request by request number: for each request number exactly one
// backend invocation is performed, and later agents replaying the same
// request number receive the cached result. This is what lets more than one
// CPU under a differential test share the same virtual devices. The ring
// capacity bounds the commit skew tolerated between agents.
type Dispatcher struct {
	devices   []boundDevice
	readRing  *RingBuffer[readRequest]
	writeRing *RingBuffer[writeRequest]
	agents    []*Agent
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	bufferSize int
}

// WithBufferSize sets the capacity of the request history rings. The
// default is 32.
func WithBufferSize(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.bufferSize = n
	}
}

// NewDispatcher creates a bus with the given devices attached.
func NewDispatcher(devices []Device, opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{bufferSize: 32}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Dispatcher{
		readRing:  NewRingBuffer[readRequest](cfg.bufferSize),
		writeRing: NewRingBuffer[writeRequest](cfg.bufferSize),
	}
	for _, dev := range devices {
		d.devices = append(d.devices, boundDevice{
			port:      NewPort(dev.Frontend, dev.Backend),
			addrBegin: dev.AddrBegin,
			byteSpan:  dev.ByteSpan,
		})
	}
	return d
}

// RequestRead issues a read request with an explicit request number. The
// request number of an agent must start at 0 and increase by 1 per request.
// A request number already in the history ring replays the cached result
// without consulting the device; the cached address and width must match.
func (d *Dispatcher) RequestRead(addr uint64, width Width, reqNo uint64) (uint64, bool) {
	switch {
	case reqNo < d.readRing.FirstIndex():
		fmt.Fprintln(os.Stderr, "vio: read request buffer underflow")
		return 0, false
	case reqNo < d.readRing.LastIndex():
		cached := d.readRing.At(reqNo)
		if cached.addr == addr && cached.width == width {
			return cached.data, cached.ok
		}
		fmt.Fprintf(os.Stderr,
			"vio: read request mismatch: cached addr=%#x width=%v, new addr=%#x width=%v\n",
			cached.addr, cached.width, addr, width)
		return 0, false
	case reqNo == d.readRing.LastIndex():
		data, ok := d.deviceRead(addr, width)
		d.readRing.PushBack(readRequest{addr: addr, width: width, data: data, ok: ok})
		return data, ok
	default:
		fmt.Fprintln(os.Stderr, "vio: read request buffer overflow")
		return 0, false
	}
}

// RequestWrite issues a write request with an explicit request number,
// symmetric to RequestRead against the write history ring.
func (d *Dispatcher) RequestWrite(addr uint64, width Width, reqNo uint64, data uint64) bool {
	switch {
	case reqNo < d.writeRing.FirstIndex():
		fmt.Fprintln(os.Stderr, "vio: write request buffer underflow")
		return false
	case reqNo < d.writeRing.LastIndex():
		cached := d.writeRing.At(reqNo)
		if cached.addr == addr && cached.width == width && cached.data == data {
			return cached.success
		}
		fmt.Fprintf(os.Stderr,
			"vio: write request mismatch: cached addr=%#x width=%v data=%#x, new addr=%#x width=%v data=%#x\n",
			cached.addr, cached.width, cached.data, addr, width, data)
		return false
	case reqNo == d.writeRing.LastIndex():
		success := d.deviceWrite(addr, width, data)
		d.writeRing.PushBack(writeRequest{addr: addr, width: width, data: data, success: success})
		return success
	default:
		fmt.Fprintln(os.Stderr, "vio: write request buffer overflow")
		return false
	}
}

func (d *Dispatcher) deviceRead(addr uint64, width Width) (uint64, bool) {
	for i := range d.devices {
		dev := &d.devices[i]
		if addr >= dev.addrBegin && addr < dev.addrBegin+dev.byteSpan {
			data, ok := dev.port.Read(addr-dev.addrBegin, width)
			// Each request number reaches a port exactly once; the
			// dispatcher rings carry the cross-cycle memoization.
			dev.port.NextCycle()
			return data, ok
		}
	}
	return 0, false
}

func (d *Dispatcher) deviceWrite(addr uint64, width Width, data uint64) bool {
	for i := range d.devices {
		dev := &d.devices[i]
		if addr >= dev.addrBegin && addr < dev.addrBegin+dev.byteSpan {
			success := dev.port.Write(addr-dev.addrBegin, width, data)
			dev.port.NextCycle()
			return success
		}
	}
	return false
}

// NewAgent creates a new agent attached to this dispatcher. Each CPU on the
// bus gets its own agent; agents cooperate through the shared request
// rings.
func (d *Dispatcher) NewAgent() *Agent {
	a := &Agent{dispatcher: d}
	d.agents = append(d.agents, a)
	return a
}

// Agent is a per-CPU handle on a Dispatcher. It numbers its requests with
// its own monotonically increasing counters so that two agents issuing the
// same request sequence observe identical device behavior.
type Agent struct {
	dispatcher    *Dispatcher
	readCount     uint64
	writeCount    uint64
	oldReadCount  uint64
	oldWriteCount uint64
}

// Read performs a read on the bus. A repeated read of an address already
// requested in the current cycle replays the ring entry; issuing reads to
// the same address with different widths in one cycle is an error.
func (a *Agent) Read(addr uint64, width Width) (uint64, bool) {
	ring := a.dispatcher.readRing
	for i := a.oldReadCount; i < a.readCount; i++ {
		cached := ring.At(i)
		if cached.addr != addr {
			continue
		}
		if cached.width == width {
			return cached.data, cached.ok
		}
		fmt.Fprintf(os.Stderr,
			"vio: read requests to address %#x with different widths in the same cycle\n", addr)
		return 0, false
	}
	reqNo := a.readCount
	a.readCount++
	return a.dispatcher.RequestRead(addr, width, reqNo)
}

// Write performs a write on the bus, with the same cycle-replay rule as
// Read.
func (a *Agent) Write(addr uint64, width Width, data uint64) bool {
	ring := a.dispatcher.writeRing
	for i := a.oldWriteCount; i < a.writeCount; i++ {
		cached := ring.At(i)
		if cached.addr != addr {
			continue
		}
		if cached.width == width && cached.data == data {
			return cached.success
		}
		fmt.Fprintf(os.Stderr,
			"vio: write requests to address %#x with different width or data in the same cycle\n", addr)
		return false
	}
	reqNo := a.writeCount
	a.writeCount++
	return a.dispatcher.RequestWrite(addr, width, reqNo, data)
}

// NextCycle closes the agent's current cycle window. Requests issued after
// this call no longer replay entries from before it.
func (a *Agent) NextCycle() {
	a.oldReadCount = a.readCount
	a.oldWriteCount = a.writeCount
}
