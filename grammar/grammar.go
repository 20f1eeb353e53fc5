// Package grammar holds the immutable description of a parseable language:
// token matchers, skip types and the state table that drives a parser.
//
// A Grammar is built once from a Description, validated eagerly, and may then
// be shared read-only by any number of parsers on any number of goroutines.
package grammar

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/dhamidi/streamparse/ebnflex"
)

// TokenTypeID identifies a token type. IDs are assigned in matcher
// declaration order starting at 0.
type TokenTypeID uint32

// EOF is the reserved token type of the end of input. A state may declare a
// transition on it, naming the token "EOF"; the transition is taken once
// when the parser is finished.
const (
	EOF     TokenTypeID = ^TokenTypeID(0)
	EOFName             = "EOF"
)

// StateID identifies a parser state. IDs are assigned in state declaration
// order starting at 0.
type StateID uint32

// Recognizer classifies the bytes at the start of its input. Resume
// continues an attempt that returned Incomplete on a prefix of input.
type Recognizer interface {
	Match(input []byte, atEOF bool) ebnflex.Result
	Resume(pr *ebnflex.Progress, input []byte, atEOF bool) ebnflex.Result
	String() string
}

// Literal matches an exact byte sequence.
type Literal []byte

func (l Literal) Match(input []byte, atEOF bool) ebnflex.Result {
	var pr ebnflex.Progress
	return l.Resume(&pr, input, atEOF)
}

func (l Literal) Resume(pr *ebnflex.Progress, input []byte, atEOF bool) ebnflex.Result {
	n := min(len(input), len(l))
	if !bytes.Equal(input[pr.Pos:n], l[pr.Pos:n]) {
		return ebnflex.Result{Status: ebnflex.Rejected}
	}
	if n == len(l) {
		return ebnflex.Result{Status: ebnflex.Accepted, Length: len(l)}
	}
	if atEOF {
		return ebnflex.Result{Status: ebnflex.Rejected, Truncated: n > 0}
	}
	pr.Pos = n
	return ebnflex.Result{Status: ebnflex.Incomplete}
}

func (l Literal) String() string {
	return strconv.Quote(string(l))
}

// Pattern matches an EBNF expression.
type Pattern struct {
	*ebnflex.Pattern
}

func (p Pattern) String() string {
	return "<" + p.Source() + ">"
}

// MatcherKind tags the recognizer variant of a Matcher.
type MatcherKind int

const (
	KindLiteral MatcherKind = iota
	KindCharClass
	KindPattern
)

func (k MatcherKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindCharClass:
		return "class"
	case KindPattern:
		return "pattern"
	default:
		return fmt.Sprintf("MatcherKind(%d)", int(k))
	}
}

// Matcher is one entry of the token matcher set.
type Matcher struct {
	ID       TokenTypeID
	Name     string
	Kind     MatcherKind
	Priority int
	Recognizer
}

// Transition is the action taken for one token type in one state.
type Transition struct {
	Emit []EventSpec
	Next StateID
	// Push saves Return before moving to Next.
	Push   bool
	Return StateID
	// Pop moves to the most recently saved return state instead of Next.
	Pop bool
}

// State is one row of the state table.
type State struct {
	ID          StateID
	Name        string
	Transitions map[TokenTypeID]*Transition
}

// Allows reports whether token type t is legal in the state.
func (s *State) Allows(t TokenTypeID) bool {
	_, ok := s.Transitions[t]
	return ok
}

// Terminal reports whether no token is legal in the state.
func (s *State) Terminal() bool {
	return len(s.Transitions) == 0
}

// Grammar is an immutable, validated language description.
type Grammar struct {
	name        string
	matchers    []*Matcher
	byPriority  []*Matcher
	skip        []bool
	states      []*State
	initial     StateID
	accept      []bool
	fingerprint uint64
}

func (g *Grammar) Name() string {
	return g.name
}

// Matchers returns the matchers in declaration order. The slice must not be
// modified.
func (g *Grammar) Matchers() []*Matcher {
	return g.matchers
}

// MatchOrder returns the matchers ordered by descending priority, ties kept
// in declaration order. The slice must not be modified.
func (g *Grammar) MatchOrder() []*Matcher {
	return g.byPriority
}

// IsSkip reports whether tokens of type t are dropped before reaching the
// state machine.
func (g *Grammar) IsSkip(t TokenTypeID) bool {
	return t < TokenTypeID(len(g.skip)) && g.skip[t]
}

func (g *Grammar) NumStates() int {
	return len(g.states)
}

// State returns the state with the given id.
func (g *Grammar) State(id StateID) *State {
	if int(id) >= len(g.states) {
		return nil
	}
	return g.states[id]
}

func (g *Grammar) Initial() StateID {
	return g.initial
}

// IsAccepting reports whether finishing input in state id completes a
// document.
func (g *Grammar) IsAccepting(id StateID) bool {
	return int(id) < len(g.accept) && g.accept[id]
}

// TokenName returns the declared name of a token type.
func (g *Grammar) TokenName(t TokenTypeID) string {
	if t == EOF {
		return EOFName
	}
	if int(t) < len(g.matchers) {
		return g.matchers[t].Name
	}
	return fmt.Sprintf("token(%d)", t)
}

// StateName returns the declared name of a state.
func (g *Grammar) StateName(id StateID) string {
	if s := g.State(id); s != nil {
		return s.Name
	}
	return fmt.Sprintf("state(%d)", id)
}

// LookupToken finds a token type by name.
func (g *Grammar) LookupToken(name string) (TokenTypeID, bool) {
	if name == EOFName {
		return EOF, true
	}
	for _, m := range g.matchers {
		if m.Name == name {
			return m.ID, true
		}
	}
	return 0, false
}

// LookupState finds a state by name.
func (g *Grammar) LookupState(name string) (StateID, bool) {
	for _, s := range g.states {
		if s.Name == name {
			return s.ID, true
		}
	}
	return 0, false
}

// Fingerprint is a hash of the normalized description the grammar was built
// from. Equal descriptions yield equal fingerprints.
func (g *Grammar) Fingerprint() uint64 {
	return g.fingerprint
}

func (g *Grammar) String() string {
	return fmt.Sprintf("%s (%d matchers, %d states, %016x)", g.name, len(g.matchers), len(g.states), g.fingerprint)
}
