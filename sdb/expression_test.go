package sdb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/sdb"
	"github.com/sarchlab/rvsim/vio"
)

// eval evaluates an expression without a CPU attached.
func eval(expr string) (uint32, bool) {
	return sdb.EvaluateExpression[uint32](expr, nil)
}

func evalOK(expr string) uint32 {
	v, ok := eval(expr)
	ExpectWithOffset(1, ok).To(BeTrue(), "expression %q should evaluate", expr)
	return v
}

var _ = Describe("EvaluateExpression", func() {
	Context("literals", func() {
		It("should parse every base", func() {
			Expect(evalOK("42")).To(Equal(uint32(42)))
			Expect(evalOK("0x2a")).To(Equal(uint32(42)))
			Expect(evalOK("0o52")).To(Equal(uint32(42)))
			Expect(evalOK("0b101010")).To(Equal(uint32(42)))
		})
	})

	Context("operators", func() {
		It("should honor C-like precedence", func() {
			Expect(evalOK("1 + 2 * 3")).To(Equal(uint32(7)))
			Expect(evalOK("(1 + 2) * 3")).To(Equal(uint32(9)))
			Expect(evalOK("1 | 2 ^ 3 & 2")).To(Equal(uint32(1 | 2 ^ 3&2)))
			Expect(evalOK("1 << 4 - 1")).To(Equal(uint32(8)))
			Expect(evalOK("2 + 3 == 5")).To(Equal(uint32(1)))
		})

		It("should evaluate logical operators", func() {
			Expect(evalOK("1 && 2")).To(Equal(uint32(1)))
			Expect(evalOK("1 && 0")).To(Equal(uint32(0)))
			Expect(evalOK("0 || 3")).To(Equal(uint32(1)))
			Expect(evalOK("0 || 0")).To(Equal(uint32(0)))
			Expect(evalOK("1 + 1 == 2 && 3 > 2")).To(Equal(uint32(1)))
		})

		It("should distinguish the three shift operators", func() {
			Expect(evalOK("1 << 4")).To(Equal(uint32(16)))
			// >> is arithmetic, >>> is logical.
			Expect(evalOK("0 - 16 >> 2")).To(Equal(uint32(0xfffffffc)))
			Expect(evalOK("16 >>> 2")).To(Equal(uint32(4)))
		})

		It("should apply unary operators right to left", func() {
			Expect(evalOK("-1")).To(Equal(uint32(0xffffffff)))
			Expect(evalOK("- -5")).To(Equal(uint32(5)))
			Expect(evalOK("~0")).To(Equal(uint32(0xffffffff)))
			Expect(evalOK("!0")).To(Equal(uint32(1)))
			Expect(evalOK("!42")).To(Equal(uint32(0)))
			Expect(evalOK("-1 + 2")).To(Equal(uint32(1)))
		})

		It("should truncate and sign-extend with the width accessors", func() {
			Expect(evalOK("byte 0x1ff")).To(Equal(uint32(0xff)))
			Expect(evalOK("half 0x12345")).To(Equal(uint32(0x2345)))
			Expect(evalOK("sbyte 0x80")).To(Equal(uint32(0xffffff80)))
			Expect(evalOK("shalf 0x8000")).To(Equal(uint32(0xffff8000)))
		})

		It("should fail on division by zero", func() {
			_, ok := eval("1 / 0")
			Expect(ok).To(BeFalse())
			_, ok = eval("1 % 0")
			Expect(ok).To(BeFalse())
		})
	})

	Context("syntax errors", func() {
		It("should reject malformed expressions", func() {
			for _, expr := range []string{"", "1 +", "* 2", "(1", "1)", "1 2", "1 @ 2"} {
				_, ok := eval(expr)
				Expect(ok).To(BeFalse(), "expression %q should fail", expr)
			}
		})
	})

	Context("with a CPU attached", func() {
		var cpu *emu.SystemCPU[uint32]

		BeforeEach(func() {
			mem := emu.NewMemory(0x80000000, 0x1000)
			mem.Set(0x80000010, vio.WidthWord, 0xdeadbeef)
			cpu = emu.NewSystemCPU[uint32](mem, mem)
			cpu.Reset(0x80000000)
			cpu.GprFile()[10] = 0x1234 // a0
		})

		It("should resolve pc and register names", func() {
			v, ok := sdb.EvaluateExpression[uint32]("pc", cpu)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0x80000000)))

			Expect(must(sdb.EvaluateExpression[uint32]("a0", cpu))).To(Equal(uint32(0x1234)))
			Expect(must(sdb.EvaluateExpression[uint32]("x10", cpu))).To(Equal(uint32(0x1234)))
			Expect(must(sdb.EvaluateExpression[uint32]("a0 + 4", cpu))).To(Equal(uint32(0x1238)))
		})

		It("should dereference memory with pmem and vmem", func() {
			Expect(must(sdb.EvaluateExpression[uint32]("pmem (pc + 0x10)", cpu))).
				To(Equal(uint32(0xdeadbeef)))
			Expect(must(sdb.EvaluateExpression[uint32]("vmem 0x80000010", cpu))).
				To(Equal(uint32(0xdeadbeef)))
		})

		It("should fail memory accesses outside RAM", func() {
			_, ok := sdb.EvaluateExpression[uint32]("pmem 0", cpu)
			Expect(ok).To(BeFalse())
		})

		It("should fail register references without a CPU", func() {
			_, ok := sdb.EvaluateExpression[uint32]("a0", nil)
			Expect(ok).To(BeFalse())
		})
	})
})

func must(v uint32, ok bool) uint32 {
	ExpectWithOffset(1, ok).To(BeTrue())
	return v
}
