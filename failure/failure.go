// Package failure defines the error taxonomy shared by grammar construction
// and parser instances.
package failure

import (
	"errors"
	"fmt"
)

// Code is the numeric result code reported for a failure. The values are
// stable and meant to be handed across process or language boundaries.
type Code int

const (
	CodeOK              Code = 0
	CodeUnknown         Code = 1
	CodeOutOfMemory     Code = 2
	CodeIO              Code = 10
	CodeEOF             Code = 11
	CodeInvalidHandle   Code = 20
	CodeInvalidArgument Code = 21
	CodeInvalidState    Code = 22
	CodeUnexpectedToken Code = 23
	CodeParserConfig    Code = 24
	CodeNotImplemented  Code = 30
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeUnknown:
		return "unknown"
	case CodeOutOfMemory:
		return "out of memory"
	case CodeIO:
		return "io"
	case CodeEOF:
		return "unexpected end of input"
	case CodeInvalidHandle:
		return "invalid handle"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeInvalidState:
		return "invalid state"
	case CodeUnexpectedToken:
		return "unexpected token"
	case CodeParserConfig:
		return "parser configuration"
	case CodeNotImplemented:
		return "not implemented"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Kind classifies a failure.
type Kind int

const (
	KindNone Kind = iota
	KindConfiguration
	KindLexical
	KindStructural
	KindResource
	KindInvalidHandle
	KindInvalidArgument
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfiguration:
		return "configuration"
	case KindLexical:
		return "lexical"
	case KindStructural:
		return "structural"
	case KindResource:
		return "resource"
	case KindInvalidHandle:
		return "invalid handle"
	case KindInvalidArgument:
		return "invalid argument"
	case KindInvalidState:
		return "invalid state"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fatal reports whether a failure of this kind stops a parser instance from
// accepting further input until it is reset.
func (k Kind) Fatal() bool {
	return k == KindLexical || k == KindStructural || k == KindResource
}

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrLexical         = errors.New("lexical error")
	ErrStructural      = errors.New("structural error")
	ErrResource        = errors.New("resource error")
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindLexical:
		return ErrLexical
	case KindStructural:
		return ErrStructural
	case KindResource:
		return ErrResource
	case KindInvalidHandle:
		return ErrInvalidHandle
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindInvalidState:
		return ErrInvalidState
	}
	return nil
}

// NoOffset marks an Error that is not tied to a position in the input.
const NoOffset = ^uint64(0)

// Error is a failure reported by the engine.
type Error struct {
	Kind    Kind
	Code    Code
	Offset  uint64
	Message string
	Err     error
}

// New returns an Error of the given kind with the kind's default code.
func New(kind Kind, offset uint64, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Code:    DefaultCode(kind),
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap returns an Error of the given kind that wraps err.
func Wrap(kind Kind, offset uint64, err error, format string, args ...any) *Error {
	e := New(kind, offset, format, args...)
	e.Err = err
	return e
}

// Truncated returns the lexical error used when input ends in the middle of
// a token or of a document.
func Truncated(offset uint64, format string, args ...any) *Error {
	e := New(KindLexical, offset, format, args...)
	e.Code = CodeEOF
	return e
}

// DefaultCode maps a kind to the code reported for it.
func DefaultCode(kind Kind) Code {
	switch kind {
	case KindNone:
		return CodeOK
	case KindConfiguration:
		return CodeParserConfig
	case KindLexical, KindStructural:
		return CodeUnexpectedToken
	case KindResource:
		return CodeOutOfMemory
	case KindInvalidHandle:
		return CodeInvalidHandle
	case KindInvalidArgument:
		return CodeInvalidArgument
	case KindInvalidState:
		return CodeInvalidState
	default:
		return CodeUnknown
	}
}

// HasOffset reports whether the error carries an input offset.
func (e *Error) HasOffset() bool {
	return e.Offset != NoOffset
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.HasOffset() {
		return fmt.Sprintf("%s error at offset %d: %s", e.Kind, e.Offset, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code for err: CodeOK for nil, the Error's code when err
// is an *Error, CodeUnknown otherwise.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeUnknown
}
