// Package format renders parse events and tokens for display.
package format

import (
	"encoding"
	"fmt"
	"io"

	"github.com/dhamidi/streamparse/engine"
)

// Encoder writes events to an output stream, one event per call.
type Encoder interface {
	encoding.TextMarshaler
	Encode(ev engine.Event) error
}

// Handler adapts an Encoder to engine.Handler. The first write error is
// kept and later events are dropped.
type Handler struct {
	Encoder Encoder
	err     error
}

func (h *Handler) HandleEvent(ev engine.Event, _ any) {
	if h.err != nil {
		return
	}
	h.err = h.Encoder.Encode(ev)
}

// Err returns the first error returned by the encoder.
func (h *Handler) Err() error {
	return h.err
}

// New returns the encoder for an output name: "text" or "json".
func New(name string, w io.Writer, colored bool) (Encoder, error) {
	switch name {
	case "", "text":
		e := NewLineEncoder(w)
		e.SetColor(colored)
		return e, nil
	case "json":
		return NewJSONEncoder(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", name)
	}
}
