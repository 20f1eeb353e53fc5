package engine

import (
	"fmt"

	"github.com/dhamidi/streamparse/grammar"
)

type EventKind = grammar.EventKind

const (
	StartDocument = grammar.StartDocument
	EndDocument   = grammar.EndDocument
	StartElement  = grammar.StartElement
	EndElement    = grammar.EndElement
	Value         = grammar.Value
	Error         = grammar.Error
)

// Event is a structural notification delivered to a Handler.
type Event struct {
	Kind   EventKind
	Data   []byte
	Offset uint64
}

// Len returns the length of the event data.
func (e Event) Len() int {
	return len(e.Data)
}

// Clone returns a copy of the event that owns its data.
func (e Event) Clone() Event {
	if e.Data != nil {
		e.Data = append(make([]byte, 0, len(e.Data)), e.Data...)
	}
	return e
}

func (e Event) String() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("%d %s", e.Offset, e.Kind)
	}
	return fmt.Sprintf("%d %s %q", e.Offset, e.Kind, e.Data)
}

// Handler consumes parse events. userData is the value registered together
// with the handler.
type Handler interface {
	HandleEvent(ev Event, userData any)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev Event, userData any)

func (f HandlerFunc) HandleEvent(ev Event, userData any) {
	f(ev, userData)
}

// Recorder is a Handler that keeps a copy of every event.
type Recorder struct {
	Events []Event
}

func (r *Recorder) HandleEvent(ev Event, _ any) {
	r.Events = append(r.Events, ev.Clone())
}

// Kinds returns the kinds of the recorded events.
func (r *Recorder) Kinds() []EventKind {
	kinds := make([]EventKind, len(r.Events))
	for i, ev := range r.Events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.Events = r.Events[:0]
}
