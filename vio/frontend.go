package vio

import (
	"fmt"
	"os"
)

// IOReqType classifies a resolved I/O request.
type IOReqType uint8

// I/O request types.
const (
	IOReqRead IOReqType = iota
	IOReqWrite
	IOReqPollIn
	IOReqPollOut
	IOReqIoctlGet
	IOReqIoctlSet
	IOReqInvalid
)

// IOReq is a resolved I/O request: the kind of operation plus the
// device-family request tag to hand to the backend.
type IOReq struct {
	Type IOReqType
	Req  uint64
}

// Frontend resolves MMIO offset/width accesses into abstract device requests
// and handles device-local control parameters (ioctls).
type Frontend interface {
	// ResolveRead maps an MMIO read to a device request.
	ResolveRead(offset uint64, width Width) IOReq

	// ResolveWrite maps an MMIO write to a device request.
	ResolveWrite(offset uint64, width Width, data uint64) IOReq

	// IoctlGet returns a device control parameter. Called for reads that
	// resolve to IOReqIoctlGet.
	IoctlGet(b Backend, req uint64) uint64

	// IoctlSet updates a device control parameter. Called for writes that
	// resolve to IOReqIoctlSet.
	IoctlSet(b Backend, req uint64, value uint64)
}

// Port couples a frontend with its backend and caches the first read and
// the first write of each cycle. Repeating the same request within one
// cycle replays the cached result instead of invoking the backend again,
// so each CPU in a differential test observes the same device response and
// no MMIO operation executes more than once. A CPU is assumed to issue at
// most one distinct MMIO read and one distinct MMIO write to the same
// device per cycle; conflicting requests in one cycle are errors.
type Port struct {
	front Frontend
	back  Backend

	readCached  bool
	readOffset  uint64
	readData    uint64
	readOK      bool
	writeCached bool
	writeOffset uint64
	writeData   uint64
	writeResult bool
}

// NewPort binds a frontend to its backend.
func NewPort(front Frontend, back Backend) *Port {
	return &Port{front: front, back: back}
}

// Read performs an MMIO read at the given offset, consulting the cycle
// cache first. The second return value is false if the request is invalid
// or conflicts with an earlier request in the same cycle.
func (p *Port) Read(offset uint64, width Width) (uint64, bool) {
	if p.readCached {
		if p.readOffset == offset {
			return p.readData, p.readOK
		}
		fmt.Fprintln(os.Stderr, "vio: reading from different MMIO addresses in a single cycle")
		return 0, false
	}

	req := p.front.ResolveRead(offset, width)
	p.readCached = true
	p.readOffset = offset
	switch req.Type {
	case IOReqRead:
		p.readData = p.back.Request(req.Req)
		p.readOK = true
	case IOReqPollIn:
		p.readData = 0
		if p.back.Poll(req.Req) {
			p.readData = 1
		}
		p.readOK = true
	case IOReqPollOut:
		// Software-emulated devices are always ready to accept output.
		p.readData = 1
		p.readOK = true
	case IOReqIoctlGet:
		p.readData = p.front.IoctlGet(p.back, req.Req)
		p.readOK = true
	case IOReqIoctlSet, IOReqWrite:
		fmt.Fprintln(os.Stderr, "vio: MMIO read resolved as a write request type")
		fallthrough
	default:
		p.readData = 0
		p.readOK = false
	}
	if p.readOK {
		p.readData = ZeroTruncate(p.readData, width)
	}
	return p.readData, p.readOK
}

// Write performs an MMIO write at the given offset, consulting the cycle
// cache first. It returns false if the request is invalid or conflicts with
// an earlier write in the same cycle.
func (p *Port) Write(offset uint64, width Width, data uint64) bool {
	if p.writeCached {
		if p.writeOffset != offset {
			fmt.Fprintln(os.Stderr, "vio: writing to different MMIO addresses in a single cycle")
			return false
		}
		if p.writeData != data {
			fmt.Fprintln(os.Stderr, "vio: writing different values to the same MMIO address in a single cycle")
			return false
		}
		return p.writeResult
	}

	req := p.front.ResolveWrite(offset, width, data)
	p.writeCached = true
	p.writeOffset = offset
	p.writeData = data
	switch req.Type {
	case IOReqWrite:
		p.back.Put(req.Req, data)
		p.writeResult = true
	case IOReqIoctlSet:
		p.front.IoctlSet(p.back, req.Req, data)
		p.writeResult = true
	case IOReqRead, IOReqPollIn, IOReqPollOut, IOReqIoctlGet:
		fmt.Fprintln(os.Stderr, "vio: MMIO write resolved as a read request type")
		fallthrough
	default:
		p.writeResult = false
	}
	return p.writeResult
}

// NextCycle clears the cached requests and results. Must be called at each
// cycle boundary.
func (p *Port) NextCycle() {
	p.readCached = false
	p.writeCached = false
}
