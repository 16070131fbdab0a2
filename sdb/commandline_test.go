package sdb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/sdb"
)

var _ = Describe("TokenizeCommand", func() {
	It("should split on unquoted spaces", func() {
		tokens, ok := sdb.TokenizeCommand("break rm 3")
		Expect(ok).To(BeTrue())
		Expect(tokens).To(Equal([]string{"break", "rm", "3"}))
	})

	It("should collapse repeated spaces", func() {
		tokens, ok := sdb.TokenizeCommand("  step   5  ")
		Expect(ok).To(BeTrue())
		Expect(tokens).To(Equal([]string{"step", "5"}))
	})

	It("should preserve spaces inside double quotes", func() {
		tokens, ok := sdb.TokenizeCommand(`eval "a0 + 1"`)
		Expect(ok).To(BeTrue())
		Expect(tokens).To(Equal([]string{"eval", "a0 + 1"}))
	})

	It("should treat a backslash-escaped character literally", func() {
		tokens, ok := sdb.TokenizeCommand(`eval a\ b \"`)
		Expect(ok).To(BeTrue())
		Expect(tokens).To(Equal([]string{"eval", "a b", `"`}))
	})

	It("should reject an unclosed quote", func() {
		_, ok := sdb.TokenizeCommand(`eval "a0`)
		Expect(ok).To(BeFalse())
	})

	It("should reject a trailing escape", func() {
		_, ok := sdb.TokenizeCommand(`eval a\`)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("ParseCommand", func() {
	It("should structure a plain command", func() {
		cmd, ok := sdb.ParseCommand([]string{"examine", "pc", "4", "4"})
		Expect(ok).To(BeTrue())
		Expect(cmd.SdbCommand).To(Equal("examine"))
		Expect(cmd.Args).To(Equal([]string{"pc", "4", "4"}))
		Expect(cmd.HasPipe).To(BeFalse())
	})

	It("should split off the pipe command", func() {
		cmd, ok := sdb.ParseCommand([]string{"trace", "instr", "|", "less"})
		Expect(ok).To(BeTrue())
		Expect(cmd.SdbCommand).To(Equal("trace"))
		Expect(cmd.Args).To(Equal([]string{"instr"}))
		Expect(cmd.HasPipe).To(BeTrue())
		Expect(cmd.PipeCommand).To(Equal("less"))
	})

	It("should reject an empty command", func() {
		_, ok := sdb.ParseCommand(nil)
		Expect(ok).To(BeFalse())
	})

	It("should reject a pipe without a target", func() {
		_, ok := sdb.ParseCommand([]string{"status", "|"})
		Expect(ok).To(BeFalse())
	})

	It("should reject a pipe with more than one target token", func() {
		_, ok := sdb.ParseCommand([]string{"status", "|", "sort", "-u"})
		Expect(ok).To(BeFalse())
	})

	It("should reject a leading pipe", func() {
		_, ok := sdb.ParseCommand([]string{"|", "less"})
		Expect(ok).To(BeFalse())
	})
})
