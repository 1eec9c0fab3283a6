//go:build rp2040 || rp2350

package corelog

import (
	"io"

	"scpcore-go/x/fmtx"
)

// StreamDrain writes directly through an io.Writer (the product's
// UART/log-stream implementation, §6.5) using the allocation-light
// MCU formatter instead of zerolog, matching the teacher's own choice
// to avoid fmt on this build tag.
type StreamDrain struct {
	w io.Writer
}

func NewStreamDrain(w io.Writer) *StreamDrain { return &StreamDrain{w: w} }

func (d *StreamDrain) Lifecycle(msg string) {
	fmtx.Fprintf(d.w, "[lifecycle] %s\n", msg)
}

func (d *StreamDrain) Lifecyclef(format string, args ...any) {
	fmtx.Fprintf(d.w, "[lifecycle] "+format+"\n", args...)
}

func (d *StreamDrain) Errorf(format string, args ...any) {
	fmtx.Fprintf(d.w, "[error] "+format+"\n", args...)
}

func (d *StreamDrain) Dropf(format string, args ...any) {
	fmtx.Fprintf(d.w, "[drop] "+format+"\n", args...)
}

var _ Logger = (*StreamDrain)(nil)
