package insts

type cacheLine struct {
	instr  uint32
	decode Decode
}

// DecodeCache is a direct-mapped cache of decoded instructions indexed by
// PC. A line is reused only when its raw instruction word matches the word
// fetched at that PC, so self-modifying code that changes an instruction is
// re-decoded; rewriting an instruction with an identical raw word is
// indistinguishable from no change.
type DecodeCache struct {
	lines []cacheLine
	mask  uint64
	shamt uint
}

// NewDecodeCache creates a decode cache with 1<<offsetBits lines. The PC is
// shifted right by shamt before indexing; use 2 for fixed 32-bit
// instructions.
func NewDecodeCache(offsetBits, shamt uint) *DecodeCache {
	c := &DecodeCache{
		lines: make([]cacheLine, 1<<offsetBits),
		mask:  (1 << offsetBits) - 1,
		shamt: shamt,
	}
	c.Reset()
	return c
}

// Reset empties every line.
func (c *DecodeCache) Reset() {
	for i := range c.lines {
		c.lines[i] = cacheLine{decode: Decode{Dispatch: OpInvalid}}
	}
}

// Decode returns the decoded form of the instruction word fetched at pc,
// reusing the cached line on a hit and invoking the decoder on a miss.
func (c *DecodeCache) Decode(pc uint64, instr uint32) Decode {
	idx := pc >> c.shamt & c.mask
	if c.lines[idx].instr == instr {
		return c.lines[idx].decode
	}
	d := DecodeInstr(instr)
	c.lines[idx] = cacheLine{instr: instr, decode: d}
	return d
}
