// Package machine drives a grammar's state table one token at a time.
package machine

import (
	"sort"
	"strings"

	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
	"github.com/dhamidi/streamparse/lexer"
)

// DefaultMaxDepth bounds the return stack used by push/pop transitions.
const DefaultMaxDepth = 512

// EmitFunc receives the events produced by a transition, in declared order.
type EmitFunc func(kind grammar.EventKind, data []byte, offset uint64)

// Machine is the per-parser state of a grammar's state table. It is not
// safe for concurrent use.
type Machine struct {
	grammar  *grammar.Grammar
	current  grammar.StateID
	stack    []grammar.StateID
	maxDepth int
	halted   bool
	steps    uint64
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxDepth sets the maximum return stack depth. Values below 1 select
// DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(m *Machine) {
		if n < 1 {
			n = DefaultMaxDepth
		}
		m.maxDepth = n
	}
}

func New(g *grammar.Grammar, opts ...Option) *Machine {
	m := &Machine{
		grammar:  g,
		current:  g.Initial(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the current state.
func (m *Machine) Current() grammar.StateID {
	return m.current
}

// Depth returns the number of saved return states.
func (m *Machine) Depth() int {
	return len(m.stack)
}

// Halted reports whether the machine stopped after an illegal token.
func (m *Machine) Halted() bool {
	return m.halted
}

// Steps returns the number of tokens accepted.
func (m *Machine) Steps() uint64 {
	return m.steps
}

// Accepting reports whether input may end in the current configuration.
func (m *Machine) Accepting() bool {
	return len(m.stack) == 0 && m.grammar.IsAccepting(m.current)
}

// Reset returns the machine to the grammar's initial state.
func (m *Machine) Reset() {
	m.current = m.grammar.Initial()
	m.stack = m.stack[:0]
	m.halted = false
	m.steps = 0
}

// Expected lists the names of the tokens legal in the current state.
func (m *Machine) Expected() []string {
	st := m.grammar.State(m.current)
	if st == nil {
		return nil
	}
	ids := make([]int, 0, len(st.Transitions))
	for t := range st.Transitions {
		ids = append(ids, int(t))
	}
	sort.Ints(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = m.grammar.TokenName(grammar.TokenTypeID(id))
	}
	return names
}

// Step feeds one non-skip token to the machine. On success the transition's
// events have been passed to emit and the machine has moved to the next
// state. A token that is not allowed halts the machine with a structural
// error; further calls fail until Reset.
func (m *Machine) Step(tok lexer.Token, emit EmitFunc) error {
	if m.halted {
		return failure.New(failure.KindInvalidState, tok.Offset, "state machine halted after an earlier error")
	}

	st := m.grammar.State(m.current)
	tr, ok := st.Transitions[tok.Type]
	if !ok {
		m.halted = true
		return failure.New(failure.KindStructural, tok.Offset, "unexpected %s %s in state %s, expected %s",
			m.grammar.TokenName(tok.Type), lexer.Describe(tok.Payload), st.Name, expectedList(m.Expected()))
	}

	next := tr.Next
	switch {
	case tr.Pop:
		if len(m.stack) == 0 {
			m.halted = true
			return failure.New(failure.KindStructural, tok.Offset, "unbalanced %s in state %s",
				m.grammar.TokenName(tok.Type), st.Name)
		}
		next = m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
	case tr.Push:
		if len(m.stack) >= m.maxDepth {
			m.halted = true
			return failure.New(failure.KindResource, tok.Offset, "nesting deeper than %d", m.maxDepth)
		}
		m.stack = append(m.stack, tr.Return)
	}

	if emit != nil {
		for _, spec := range tr.Emit {
			emit(spec.Kind, spec.Data(tok.Payload), tok.Offset)
		}
	}
	m.current = next
	m.steps++
	return nil
}

// Finish takes the current state's EOF transition, if it declares one, with
// offset as the position of the end of input. It does not check whether the
// resulting configuration is accepting.
func (m *Machine) Finish(offset uint64, emit EmitFunc) error {
	if m.halted {
		return failure.New(failure.KindInvalidState, offset, "state machine halted after an earlier error")
	}
	st := m.grammar.State(m.current)
	if st == nil || !st.Allows(grammar.EOF) {
		return nil
	}
	return m.Step(lexer.Token{Type: grammar.EOF, Offset: offset}, emit)
}

func expectedList(names []string) string {
	switch len(names) {
	case 0:
		return "end of input"
	case 1:
		return names[0]
	default:
		return "one of " + strings.Join(names, ", ")
	}
}
