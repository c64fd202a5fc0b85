package envelope_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dieharders/obrew-go/pkg/envelope"
)

var _ = Describe("ExtractText", func() {
	Context("priority ordering", func() {
		It("prefers text over response", func() {
			payload := []byte(`{"text":"A","response":"B"}`)
			Expect(envelope.ExtractText(payload)).To(Equal("A"))
		})

		It("prefers response over a string data field", func() {
			payload := []byte(`{"response":"B","data":"C"}`)
			Expect(envelope.ExtractText(payload)).To(Equal("B"))
		})

		It("prefers a string data field over choices", func() {
			payload := []byte(`{"data":"C","choices":[{"text":"D"}]}`)
			Expect(envelope.ExtractText(payload)).To(Equal("C"))
		})

		It("lets a present-but-empty text field win", func() {
			payload := []byte(`{"text":"","response":"B"}`)
			Expect(envelope.ExtractText(payload)).To(Equal(""))
		})
	})

	Context("individual shapes", func() {
		It("extracts a direct text field", func() {
			Expect(envelope.ExtractText([]byte(`{"text":"hello"}`))).To(Equal("hello"))
		})

		It("extracts a direct response field", func() {
			Expect(envelope.ExtractText([]byte(`{"response":"hello"}`))).To(Equal("hello"))
		})

		It("extracts a string-typed data field", func() {
			Expect(envelope.ExtractText([]byte(`{"data":"hello"}`))).To(Equal("hello"))
		})

		It("ignores a non-string data field", func() {
			payload := []byte(`{"data":{"nested":true}}`)
			Expect(envelope.ExtractText(payload)).To(Equal(string(payload)))
		})

		It("extracts the first choice's text", func() {
			payload := []byte(`{"choices":[{"text":"first"},{"text":"second"}]}`)
			Expect(envelope.ExtractText(payload)).To(Equal("first"))
		})

		It("falls back to the first choice's message content", func() {
			payload := []byte(`{"choices":[{"message":{"content":"nested"}}]}`)
			Expect(envelope.ExtractText(payload)).To(Equal("nested"))
		})

		It("defaults to empty for a bare choice", func() {
			Expect(envelope.ExtractText([]byte(`{"choices":[{}]}`))).To(Equal(""))
		})
	})

	Context("fallbacks", func() {
		It("stringifies payloads matching no known shape", func() {
			payload := []byte(`{"unknown":42}`)
			Expect(envelope.ExtractText(payload)).To(Equal(`{"unknown":42}`))
		})

		It("returns non-JSON payloads verbatim", func() {
			Expect(envelope.ExtractText([]byte("plain token"))).To(Equal("plain token"))
		})

		It("returns an empty payload verbatim", func() {
			Expect(envelope.ExtractText([]byte(""))).To(Equal(""))
		})
	})
})
