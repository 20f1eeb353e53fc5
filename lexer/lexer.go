// Package lexer classifies input bytes into tokens using a grammar's
// matcher set.
package lexer

import (
	"fmt"
	"math"

	"github.com/dhamidi/streamparse/ebnflex"
	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
)

// Token is a classified span of input. Payload aliases the input passed to
// Next and is only valid until that memory is reused.
type Token struct {
	Type    grammar.TokenTypeID
	Offset  uint64
	Length  uint32
	Payload []byte
}

// End returns the offset just past the token.
func (t Token) End() uint64 {
	return t.Offset + uint64(t.Length)
}

// Status is the outcome of a call to Next.
type Status int

const (
	// Matched means Result.Token holds the next token.
	Matched Status = iota
	// NeedMoreInput means the bytes available cannot decide the next token.
	NeedMoreInput
	// NoMatch means no matcher applies at the offset.
	NoMatch
	// Truncated means input ended inside a token that some matcher had
	// started but not completed.
	Truncated
	// Oversized means the token is longer than a Token can describe.
	Oversized
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case NeedMoreInput:
		return "need more input"
	case NoMatch:
		return "no match"
	case Truncated:
		return "truncated"
	case Oversized:
		return "oversized"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is returned by Next.
type Result struct {
	Status Status
	Token  Token
	// Skip is set when the matched token's type is a skip type.
	Skip bool
}

// Lexer applies a grammar's matchers to input. It holds no per-input state
// and may be shared by parsers using the same grammar.
type Lexer struct {
	grammar *grammar.Grammar
}

func New(g *grammar.Grammar) *Lexer {
	return &Lexer{grammar: g}
}

// Scan holds an undecided token between calls to Resume: the matcher that
// asked for more input and how far it got. Matchers before it in priority
// order have already rejected and are not consulted again.
type Scan struct {
	offset   uint64
	matcher  int
	progress ebnflex.Progress
	active   bool
}

// Reset discards the undecided token.
func (s *Scan) Reset() {
	s.active = false
	s.matcher = 0
	s.progress.Reset()
}

// Examined returns how many bytes of the undecided token have been looked
// at, or 0 when no token is pending.
func (s *Scan) Examined() int {
	if !s.active {
		return 0
	}
	return s.progress.Pos
}

// Next classifies the bytes at the start of input, which begins at absolute
// stream offset offset. atEOF reports that no more bytes will follow input.
//
// Matchers are consulted by descending priority, ties in declaration order.
// The first matcher that does not reject decides: a complete match becomes
// the token, a match that could still extend past the end of input yields
// NeedMoreInput. At end of input a partial match is resolved to its longest
// accepted prefix.
func (l *Lexer) Next(input []byte, offset uint64, atEOF bool) Result {
	var s Scan
	return l.Resume(&s, input, offset, atEOF)
}

// Resume is Next for input that arrives in pieces. When s holds a token
// left undecided at the same offset, input must start with the bytes
// passed then, and scanning picks up where it stopped.
func (l *Lexer) Resume(s *Scan, input []byte, offset uint64, atEOF bool) Result {
	if !s.active || s.offset != offset {
		s.Reset()
	}
	first := s.matcher
	s.active = false

	order := l.grammar.MatchOrder()
	truncated := false
	for i := first; i < len(order); i++ {
		m := order[i]
		if i != first {
			s.progress.Reset()
		}
		r := m.Resume(&s.progress, input, atEOF)
		switch r.Status {
		case ebnflex.Rejected:
			if r.Truncated {
				truncated = true
			}
			continue
		case ebnflex.Incomplete:
			s.offset, s.matcher, s.active = offset, i, true
			return Result{Status: NeedMoreInput}
		}
		s.Reset()
		if uint64(r.Length) > math.MaxUint32 {
			return Result{Status: Oversized}
		}
		return Result{
			Status: Matched,
			Skip:   l.grammar.IsSkip(m.ID),
			Token: Token{
				Type:    m.ID,
				Offset:  offset,
				Length:  uint32(r.Length),
				Payload: input[:r.Length:r.Length],
			},
		}
	}
	s.Reset()
	if truncated {
		return Result{Status: Truncated}
	}
	return Result{Status: NoMatch}
}

// Tokenize splits complete input into tokens, skip tokens included.
func (l *Lexer) Tokenize(input []byte) ([]Token, error) {
	var tokens []Token
	var offset uint64
	for len(input) > 0 {
		r := l.Next(input, offset, true)
		switch r.Status {
		case Matched:
			tokens = append(tokens, r.Token)
			input = input[r.Token.Length:]
			offset += uint64(r.Token.Length)
		case Truncated:
			return tokens, failure.Truncated(offset, "input ends inside a token")
		case Oversized:
			return tokens, failure.New(failure.KindResource, offset, "token exceeds %d bytes", uint32(math.MaxUint32))
		default:
			return tokens, failure.New(failure.KindLexical, offset, "unexpected input %s", Describe(input))
		}
	}
	return tokens, nil
}

// Describe renders the first bytes of input for error messages.
func Describe(input []byte) string {
	const max = 16
	if len(input) > max {
		return fmt.Sprintf("%q...", input[:max])
	}
	return fmt.Sprintf("%q", input)
}
