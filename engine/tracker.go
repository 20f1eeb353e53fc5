package engine

import (
	"github.com/dhamidi/streamparse/failure"
)

// ErrorTracker remembers the most recent failure of a parser. A new failure
// overwrites the previous one; successful operations leave it untouched.
type ErrorTracker struct {
	err *failure.Error
}

func (t *ErrorTracker) Set(err *failure.Error) {
	t.err = err
}

// Code returns the code of the last failure, or failure.CodeOK.
func (t *ErrorTracker) Code() failure.Code {
	if t.err == nil {
		return failure.CodeOK
	}
	return t.err.Code
}

// Message returns the message of the last failure, or "".
func (t *ErrorTracker) Message() string {
	if t.err == nil {
		return ""
	}
	return t.err.Error()
}

// Err returns the last failure, or nil.
func (t *ErrorTracker) Err() *failure.Error {
	return t.err
}

func (t *ErrorTracker) Reset() {
	t.err = nil
}
