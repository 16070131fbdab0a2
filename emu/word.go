package emu

import "github.com/sarchlab/rvsim/vio"

// vioWordBits reports the bit width of W.
func vioWordBits[W Word]() int {
	return vio.WordBits[W]()
}

// signed reinterprets the word as a signed value of the same width,
// widened to int64.
func signed[W Word](v W) int64 {
	if vioWordBits[W]() == 32 {
		return int64(int32(uint32(v)))
	}
	return int64(uint64(v))
}

// immWord sign-extends a decoded immediate to the word width.
func immWord[W Word](imm int32) W {
	return W(int64(imm))
}

// shamtMask returns the shift-amount mask for the word width: 5 bits on
// 32-bit cores, 6 bits on 64-bit cores.
func shamtMask[W Word]() W {
	if vioWordBits[W]() == 32 {
		return 0x1f
	}
	return 0x3f
}
