package vio_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/vio"
)

var _ = Describe("Width", func() {
	It("should accept exactly the four access widths", func() {
		for _, n := range []uint64{1, 2, 4, 8} {
			w, ok := vio.WidthOf(n)
			Expect(ok).To(BeTrue())
			Expect(uint64(w)).To(Equal(n))
		}
		for _, n := range []uint64{0, 3, 5, 16} {
			_, ok := vio.WidthOf(n)
			Expect(ok).To(BeFalse())
		}
	})
})

var _ = Describe("ZeroTruncate", func() {
	It("should zero the bits above the width", func() {
		Expect(vio.ZeroTruncate(uint32(0x12345678), vio.WidthByte)).To(Equal(uint32(0x78)))
		Expect(vio.ZeroTruncate(uint32(0x12345678), vio.WidthHalf)).To(Equal(uint32(0x5678)))
		Expect(vio.ZeroTruncate(uint32(0x12345678), vio.WidthWord)).To(Equal(uint32(0x12345678)))
		Expect(vio.ZeroTruncate(uint64(0xdeadbeefcafebabe), vio.WidthWord)).
			To(Equal(uint64(0xcafebabe)))
		Expect(vio.ZeroTruncate(uint64(0xdeadbeefcafebabe), vio.WidthDword)).
			To(Equal(uint64(0xdeadbeefcafebabe)))
	})
})

var _ = Describe("SignExtend", func() {
	It("should widen negative sub-words", func() {
		Expect(vio.SignExtend(uint32(0x80), vio.WidthByte)).To(Equal(uint32(0xffffff80)))
		Expect(vio.SignExtend(uint32(0x8000), vio.WidthHalf)).To(Equal(uint32(0xffff8000)))
		Expect(vio.SignExtend(uint64(0x80000000), vio.WidthWord)).
			To(Equal(uint64(0xffffffff80000000)))
	})

	It("should leave positive sub-words unchanged", func() {
		Expect(vio.SignExtend(uint32(0x7f), vio.WidthByte)).To(Equal(uint32(0x7f)))
		Expect(vio.SignExtend(uint64(0x7fffffff), vio.WidthWord)).To(Equal(uint64(0x7fffffff)))
	})

	It("should preserve sign semantics through a truncate round trip", func() {
		v := uint32(0xfffffff0) // -16
		Expect(vio.SignExtend(vio.ZeroTruncate(v, vio.WidthByte), vio.WidthByte)).To(Equal(v))
	})
})
