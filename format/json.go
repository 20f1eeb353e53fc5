package format

import (
	"encoding/json"
	"io"

	"github.com/dhamidi/streamparse/engine"
)

// JSONEncoder writes one JSON object per event and line.
type JSONEncoder struct {
	w     io.Writer
	event engine.Event
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{w: w}
}

func (e *JSONEncoder) Encode(ev engine.Event) error {
	e.event = ev
	text, err := e.MarshalText()
	if err != nil {
		return err
	}
	_, err = e.w.Write(append(text, '\n'))
	return err
}

type jsonEvent struct {
	Offset uint64  `json:"offset"`
	Kind   string  `json:"kind"`
	Code   int     `json:"code"`
	Data   *string `json:"data,omitempty"`
}

func (e *JSONEncoder) MarshalText() ([]byte, error) {
	ev := e.event
	data := jsonEvent{
		Offset: ev.Offset,
		Kind:   ev.Kind.String(),
		Code:   int(ev.Kind),
	}
	if ev.Data != nil {
		s := string(ev.Data)
		data.Data = &s
	}
	return json.Marshal(data)
}
