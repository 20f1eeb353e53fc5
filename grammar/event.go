package grammar

import (
	"fmt"
	"strings"
)

// EventKind identifies a structural parse event. The numeric values are
// stable.
type EventKind int

const (
	StartDocument EventKind = 0
	EndDocument   EventKind = 1
	StartElement  EventKind = 2
	EndElement    EventKind = 3
	Value         EventKind = 4
	Error         EventKind = 5
)

var eventKindNames = [...]string{
	StartDocument: "START_DOCUMENT",
	EndDocument:   "END_DOCUMENT",
	StartElement:  "START_ELEMENT",
	EndElement:    "END_ELEMENT",
	Value:         "VALUE",
	Error:         "ERROR",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EVENT(%d)", int(k))
}

// ParseEventKind accepts START_ELEMENT, start_element, StartElement and
// similar spellings.
func ParseEventKind(s string) (EventKind, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(s, "_", ""), "-", ""))
	for k, name := range eventKindNames {
		if strings.ToLower(strings.ReplaceAll(name, "_", "")) == norm {
			return EventKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// DataSource selects what an emitted event carries.
type DataSource int

const (
	// DataNone emits an event without data.
	DataNone DataSource = iota
	// DataToken emits the payload of the token that triggered the transition.
	DataToken
	// DataLiteral emits a fixed byte string.
	DataLiteral
	// DataInner emits the token payload without its first and last byte,
	// which strips the delimiters of quoted tokens.
	DataInner
)

// EventSpec describes one event emitted by a transition.
type EventSpec struct {
	Kind    EventKind
	Source  DataSource
	Literal []byte
}

// Data returns the bytes the event carries for a token with the given
// payload. Literal data is copied so the grammar stays immutable whatever
// the receiver does with it.
func (s EventSpec) Data(payload []byte) []byte {
	switch s.Source {
	case DataToken:
		return payload
	case DataLiteral:
		return append(make([]byte, 0, len(s.Literal)), s.Literal...)
	case DataInner:
		if len(payload) < 2 {
			return payload[:0]
		}
		return payload[1 : len(payload)-1]
	default:
		return nil
	}
}
