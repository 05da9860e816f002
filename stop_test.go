package textgen_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	textgen "github.com/ncecere/textgen-sdk"
)

var _ = Describe("ScanStop", func() {
	It("reports no match when no sequence occurs", func() {
		m := textgen.ScanStop("hello world", []string{"<|end|>", "\n\n"})
		Expect(m.Found).To(BeFalse())
	})

	It("reports the offset of the first occurrence", func() {
		m := textgen.ScanStop("sat on <STOP> the mat <STOP>", []string{"<STOP>"})
		Expect(m).To(Equal(textgen.StopMatch{Found: true, Offset: 7, Sequence: "<STOP>"}))
	})

	It("lets the later configured sequence win when several occur", func() {
		m := textgen.ScanStop("xx bar yy foo zz", []string{"bar", "foo"})
		Expect(m.Sequence).To(Equal("foo"))
		Expect(m.Offset).To(Equal(10))

		m = textgen.ScanStop("xx bar yy foo zz", []string{"foo", "bar"})
		Expect(m.Sequence).To(Equal("bar"))
		Expect(m.Offset).To(Equal(3))
	})

	It("selects by configured order, not by position in the text", func() {
		m := textgen.ScanStop("early late", []string{"late", "early"})
		Expect(m.Sequence).To(Equal("early"))
		Expect(m.Offset).To(Equal(0))

		m = textgen.ScanStop("early late", []string{"early", "late"})
		Expect(m.Sequence).To(Equal("late"))
		Expect(m.Offset).To(Equal(6))
	})

	It("ignores empty sequences", func() {
		m := textgen.ScanStop("abc", []string{"", "b", ""})
		Expect(m).To(Equal(textgen.StopMatch{Found: true, Offset: 1, Sequence: "b"}))

		Expect(textgen.ScanStop("abc", []string{""}).Found).To(BeFalse())
	})
})

var _ = Describe("TrimTrailingStop", func() {
	It("removes a trailing stop sequence", func() {
		Expect(textgen.TrimTrailingStop("Hello world<|end|>", []string{"<|end|>"})).To(Equal("Hello world"))
	})

	It("leaves text without a trailing sequence unchanged", func() {
		for _, text := range []string{"", "Hello world", "<|end|> Hello", "Hello <|end|> world"} {
			Expect(textgen.TrimTrailingStop(text, []string{"<|end|>", "\n\n"})).To(Equal(text))
		}
	})

	It("is idempotent once trimmed", func() {
		stops := []string{"<|end|>", "\n\n"}
		once := textgen.TrimTrailingStop("Hello\n\n", stops)
		Expect(textgen.TrimTrailingStop(once, stops)).To(Equal(once))
	})

	It("applies every sequence in order to the progressively trimmed text", func() {
		Expect(textgen.TrimTrailingStop("answer<A><B>", []string{"<B>", "<A>"})).To(Equal("answer"))
		Expect(textgen.TrimTrailingStop("answer<A><B>", []string{"<A>", "<B>"})).To(Equal("answer<A>"))
	})

	It("removes each sequence once", func() {
		Expect(textgen.TrimTrailingStop("x\n\n\n\n", []string{"\n\n"})).To(Equal("x\n\n"))
	})
})
