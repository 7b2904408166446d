package sse

import (
	"io"
	"strings"
)

// Writer encodes events to the SSE wire format. Each event is written in a
// single Write call so concurrent streams do not interleave fields.
type Writer struct {
	dest io.Writer
}

// NewWriter returns a Writer that encodes events onto dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// WriteEvent encodes one event followed by the blank line that terminates
// it. Multi-line data is split across "data:" fields so a compliant reader
// reassembles the original payload.
func (w *Writer) WriteEvent(ev *Event) error {
	var b strings.Builder

	if ev.Type != "" {
		b.WriteString("event: ")
		b.WriteString(ev.Type)
		b.WriteString("\n")
	}
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(ev.ID)
		b.WriteString("\n")
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	_, err := io.WriteString(w.dest, b.String())
	return err
}

// WriteComment writes a comment line that readers skip. Used as a
// keep-alive so idle connections are not reaped by intermediaries.
func (w *Writer) WriteComment(text string) error {
	_, err := io.WriteString(w.dest, ": "+text+"\n\n")
	return err
}
