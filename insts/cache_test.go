package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/insts"
)

var _ = Describe("DecodeCache", func() {
	var c *insts.DecodeCache

	BeforeEach(func() {
		c = insts.NewDecodeCache(4, 2)
	})

	It("should decode on a cold miss and reuse the line on a hit", func() {
		addi := encodeI(1, 1, 0b000, 1, 0b0010011)

		d1 := c.Decode(0x80000000, addi)
		Expect(d1.Dispatch).To(Equal(insts.OpAddi))

		d2 := c.Decode(0x80000000, addi)
		Expect(d2).To(Equal(d1))
	})

	It("should re-decode when the raw word at the same index changes", func() {
		addi := encodeI(1, 1, 0b000, 1, 0b0010011)
		xori := encodeI(1, 1, 0b100, 1, 0b0010011)

		Expect(c.Decode(0x80000000, addi).Dispatch).To(Equal(insts.OpAddi))
		Expect(c.Decode(0x80000000, xori).Dispatch).To(Equal(insts.OpXori))
		Expect(c.Decode(0x80000000, addi).Dispatch).To(Equal(insts.OpAddi))
	})

	It("should map conflicting PCs onto the same line", func() {
		addi := encodeI(1, 1, 0b000, 1, 0b0010011)
		sub := encodeR(0b0100000, 2, 1, 0b000, 3, 0b0110011)

		// 4 offset bits, shamt 2: PCs 0x40 apart share a line.
		Expect(c.Decode(0x80000000, addi).Dispatch).To(Equal(insts.OpAddi))
		Expect(c.Decode(0x80000040, sub).Dispatch).To(Equal(insts.OpSub))
		Expect(c.Decode(0x80000000, addi).Dispatch).To(Equal(insts.OpAddi))
	})

	It("should treat an all-zero word consistently with an empty line", func() {
		Expect(c.Decode(0x80000000, 0).Dispatch).To(Equal(insts.OpInvalid))
	})

	It("should forget all lines on Reset", func() {
		addi := encodeI(1, 1, 0b000, 1, 0b0010011)
		c.Decode(0x80000000, addi)
		c.Reset()
		Expect(c.Decode(0x80000000, addi).Dispatch).To(Equal(insts.OpAddi))
	})
})
