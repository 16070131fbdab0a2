package vio

// Backend is the data source/sink behind a device frontend. Each method
// takes a req tag whose meaning is defined per device family; see the
// Console* and Mtime* request constants. Behavior is undefined for an
// invalid tag.
type Backend interface {
	// Request retrieves input data, blocking until it becomes available.
	// Used when the processor explicitly reads input via MMIO. The blocking
	// behavior makes sure that simple programs assuming the input data is
	// always available will work.
	Request(req uint64) uint64

	// Poll checks whether input data is available, blocking if necessary to
	// produce a definite answer. Used when the processor explicitly checks
	// readiness via MMIO: a synchronous backend that answered "not
	// available" without blocking could make the guest busy-wait forever.
	Poll(req uint64) bool

	// Check reports whether input data is currently available. Never
	// blocks. Used when the frontend itself needs readiness information.
	Check(req uint64) bool

	// Put sends output data to the backend. Never blocks.
	Put(req uint64, data uint64)
}
