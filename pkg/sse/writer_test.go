package sse

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	Describe("WriteEvent", func() {
		It("writes a typed event with data and blank-line terminator", func() {
			w := NewWriter(buf)

			err := w.WriteEvent(&Event{Type: "admitted", Data: "{\"hash\":\"abc\"}"})
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(Equal("event: admitted\ndata: {\"hash\":\"abc\"}\n\n"))
		})

		It("omits the event field for default message type", func() {
			w := NewWriter(buf)

			err := w.WriteEvent(&Event{Data: "hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(Equal("data: hello\n\n"))
		})

		It("includes the id field when set", func() {
			w := NewWriter(buf)

			err := w.WriteEvent(&Event{ID: "7", Data: "hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(Equal("id: 7\ndata: hello\n\n"))
		})

		It("splits multi-line data across data fields", func() {
			w := NewWriter(buf)

			err := w.WriteEvent(&Event{Data: "one\ntwo"})
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(Equal("data: one\ndata: two\n\n"))
		})

		It("round-trips through the Reader", func() {
			w := NewWriter(buf)

			Expect(w.WriteEvent(&Event{Type: "evicted", Data: "{\"hash\":\"abc\",\"tokens\":9}"})).To(Succeed())
			Expect(w.WriteComment("keep-alive")).To(Succeed())
			Expect(w.WriteEvent(&Event{Data: "first\nsecond"})).To(Succeed())

			r := NewReader(buf)

			ev1, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev1.Type).To(Equal("evicted"))
			Expect(ev1.Data).To(Equal("{\"hash\":\"abc\",\"tokens\":9}"))

			ev2, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev2.Data).To(Equal("first\nsecond"))

			ev3, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev3).To(BeNil())
		})
	})

	Describe("WriteComment", func() {
		It("writes a comment line readers skip", func() {
			w := NewWriter(buf)

			err := w.WriteComment("connected")
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(Equal(": connected\n\n"))
		})
	})
})
