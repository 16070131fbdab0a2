package vio_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/vio"
)

var _ = Describe("ConsoleBackend", func() {
	var (
		out     *bytes.Buffer
		backend *vio.ConsoleBackend
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		backend = vio.NewConsoleBackend(strings.NewReader("AB"), out)
	})

	It("should deliver input bytes in order", func() {
		Expect(backend.Request(vio.ConsoleRx)).To(Equal(uint64('A')))
		Expect(backend.Request(vio.ConsoleRx)).To(Equal(uint64('B')))
	})

	It("should read as all-ones at end of input", func() {
		backend.Request(vio.ConsoleRx)
		backend.Request(vio.ConsoleRx)
		Expect(backend.Request(vio.ConsoleRx)).To(Equal(^uint64(0)))
	})

	It("should buffer the polled byte and hand it to the next request", func() {
		Expect(backend.Check(vio.ConsoleRx)).To(BeFalse())
		Expect(backend.Poll(vio.ConsoleRx)).To(BeTrue())
		Expect(backend.Check(vio.ConsoleRx)).To(BeTrue())
		Expect(backend.Request(vio.ConsoleRx)).To(Equal(uint64('A')))
		Expect(backend.Check(vio.ConsoleRx)).To(BeFalse())
	})

	It("should write output bytes", func() {
		backend.Put(vio.ConsoleTx, 'h')
		backend.Put(vio.ConsoleTx, 'i')
		Expect(out.String()).To(Equal("hi"))
	})
})

var _ = Describe("ConsoleFrontend over a Port", func() {
	var (
		out  *bytes.Buffer
		port *vio.Port
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		port = vio.NewPort(vio.ConsoleFrontend{}, vio.NewConsoleBackend(strings.NewReader("X"), out))
	})

	It("should read the rx byte at offset 0", func() {
		v, ok := port.Read(0, vio.WidthByte)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64('X')))
	})

	It("should report tx-ready and rx-valid in the status byte", func() {
		v, ok := port.Read(1, vio.WidthByte)
		Expect(ok).To(BeTrue())
		Expect(v & 1).To(Equal(uint64(1)))
		Expect(v >> 1 & 1).To(Equal(uint64(1)))
	})

	It("should transmit through offset 0", func() {
		Expect(port.Write(0, vio.WidthByte, 'y')).To(BeTrue())
		Expect(out.String()).To(Equal("y"))
	})

	It("should accept and ignore prescaler writes", func() {
		Expect(port.Write(2, vio.WidthHalf, 0x1234)).To(BeTrue())
		Expect(out.Len()).To(BeZero())
	})

	It("should reject unmapped offsets", func() {
		_, ok := port.Read(3, vio.WidthByte)
		Expect(ok).To(BeFalse())
		Expect(port.Write(5, vio.WidthByte, 0)).To(BeFalse())
	})

	It("should replay the cycle cache instead of consuming more input", func() {
		v1, _ := port.Read(0, vio.WidthByte)
		v2, _ := port.Read(0, vio.WidthByte)
		Expect(v2).To(Equal(v1))

		// A different offset in the same cycle is an error.
		_, ok := port.Read(1, vio.WidthByte)
		Expect(ok).To(BeFalse())

		port.NextCycle()
		s, ok := port.Read(1, vio.WidthByte)
		Expect(ok).To(BeTrue())
		Expect(s & 1).To(Equal(uint64(1)))
	})
})

var _ = Describe("MtimeFrontend over a Port", func() {
	var port *vio.Port

	BeforeEach(func() {
		port = vio.NewPort(vio.MtimeFrontend{}, vio.NewMtimeBackend())
	})

	It("should read mtime as a dword at offset 0", func() {
		_, ok := port.Read(0, vio.WidthDword)
		Expect(ok).To(BeTrue())
	})

	It("should store and return mtimecmp", func() {
		Expect(port.Write(8, vio.WidthDword, 0x123456789a)).To(BeTrue())
		port.NextCycle()
		v, ok := port.Read(8, vio.WidthDword)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0x123456789a)))
	})

	It("should access mtimecmp halves as words", func() {
		Expect(port.Write(8, vio.WidthWord, 0xcafebabe)).To(BeTrue())
		port.NextCycle()
		Expect(port.Write(12, vio.WidthWord, 0x1)).To(BeTrue())
		port.NextCycle()
		v, ok := port.Read(8, vio.WidthDword)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0x1cafebabe)))
	})

	It("should return a written mtime on the next read", func() {
		Expect(port.Write(0, vio.WidthDword, 5000)).To(BeTrue())
		port.NextCycle()
		v, ok := port.Read(0, vio.WidthDword)
		Expect(ok).To(BeTrue())
		Expect(v).To(BeNumerically(">=", uint64(5000)))
		Expect(v).To(BeNumerically("<", uint64(5000)+1_000_000))
	})

	It("should reject byte-wide accesses", func() {
		_, ok := port.Read(0, vio.WidthByte)
		Expect(ok).To(BeFalse())
	})
})
