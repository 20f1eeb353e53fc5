package engine

import (
	"math"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/streamparse/buffer"
	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
	"github.com/dhamidi/streamparse/lexer"
	"github.com/dhamidi/streamparse/machine"
)

var log = commonlog.GetLogger("streamparse.engine")

// Parser is one parse of a byte stream against a grammar.
type Parser struct {
	grammar  *grammar.Grammar
	lexer    *lexer.Lexer
	scan     lexer.Scan
	buf      *buffer.Buffer
	machine  *machine.Machine
	tracker  ErrorTracker
	handler  Handler
	userData any
	metrics  *Metrics
	log      commonlog.Logger

	maxBuffer int
	maxDepth  int

	started     bool
	finished    bool
	halted      bool
	destroyed   bool
	dispatching bool
}

// New creates a parser for g.
func New(g *grammar.Grammar, opts ...Option) (*Parser, error) {
	if g == nil {
		return nil, failure.New(failure.KindInvalidArgument, failure.NoOffset, "nil grammar")
	}
	p := &Parser{
		grammar:  g,
		lexer:    lexer.New(g),
		log:      log,
		maxDepth: machine.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.buf = buffer.New(buffer.WithMaxSize(p.maxBuffer))
	p.machine = machine.New(g, machine.WithMaxDepth(p.maxDepth))
	return p, nil
}

// NewFromDescription builds a grammar from desc and creates a parser for it.
func NewFromDescription(desc *grammar.Description, opts ...Option) (*Parser, error) {
	g, err := grammar.Build(desc)
	if err != nil {
		return nil, err
	}
	return New(g, opts...)
}

// Grammar returns the grammar the parser was created with.
func (p *Parser) Grammar() *grammar.Grammar {
	return p.grammar
}

// SetHandler registers the event consumer, replacing any previous one.
// Replacing the handler after parsing has started is allowed; events
// already dispatched are not replayed.
func (p *Parser) SetHandler(h Handler, userData any) error {
	if p.destroyed {
		return errDestroyed()
	}
	if p.started && !p.finished {
		p.log.Warningf("event handler replaced mid-parse at offset %d", p.buf.Offset())
	}
	p.handler = h
	p.userData = userData
	return nil
}

// Feed supplies the next chunk of input and processes every token that can
// be decided from the bytes available so far.
func (p *Parser) Feed(data []byte) error {
	if err := p.enter(); err != nil {
		return err
	}
	if p.halted {
		return p.Err()
	}
	if p.finished {
		return p.fail(failure.New(failure.KindInvalidState, p.buf.End(), "feed after finish"))
	}
	p.started = true
	p.metrics.observeBytes(p.grammar.Name(), len(data))
	p.buf.Append(data)
	p.metrics.observeBufferPeak(p.grammar.Name(), p.buf.Peak())
	return p.drain(false)
}

// Finish signals that no more input follows. Pending bytes are flushed; a
// token cut off by the end of input, or a document the state machine has
// not completed, yields a truncation error.
func (p *Parser) Finish() error {
	if err := p.enter(); err != nil {
		return err
	}
	if p.halted {
		return p.Err()
	}
	if p.finished {
		return p.fail(failure.New(failure.KindInvalidState, p.buf.End(), "finish called twice"))
	}
	p.started = true
	p.finished = true
	if err := p.drain(true); err != nil {
		return err
	}
	if err := p.machine.Finish(p.buf.End(), p.dispatch); err != nil {
		return p.fail(err)
	}
	if p.destroyed {
		return errDestroyed()
	}
	if !p.machine.Accepting() {
		return p.fail(failure.Truncated(p.buf.End(), "input ended in state %s before the document was complete",
			p.grammar.StateName(p.machine.Current())))
	}
	p.log.Debugf("finished after %d bytes, %d tokens", p.buf.End(), p.machine.Steps())
	return nil
}

// Parse feeds data as the complete input and finishes.
func (p *Parser) Parse(data []byte) error {
	if err := p.Feed(data); err != nil {
		return err
	}
	return p.Finish()
}

// Reset discards all input and parse state, including the last error, so
// the parser can be used for a new stream. The handler stays registered.
func (p *Parser) Reset() error {
	if err := p.enter(); err != nil {
		return err
	}
	p.buf.Reset()
	p.scan.Reset()
	p.machine.Reset()
	p.tracker.Reset()
	p.started = false
	p.finished = false
	p.halted = false
	return nil
}

// Destroy releases the parser's resources. It may be called from within a
// handler, in which case processing stops after the handler returns. Any
// later call, including a second Destroy, fails with an invalid handle
// error.
func (p *Parser) Destroy() error {
	if p.destroyed {
		return errDestroyed()
	}
	p.destroyed = true
	p.buf.Release()
	p.buf = nil
	p.machine = nil
	p.handler = nil
	p.userData = nil
	p.tracker.Reset()
	return nil
}

// Destroyed reports whether Destroy has been called.
func (p *Parser) Destroyed() bool {
	return p.destroyed
}

// LastError returns the code and message of the most recent failure.
func (p *Parser) LastError() (failure.Code, string) {
	if p.destroyed {
		return failure.CodeInvalidHandle, "parser destroyed"
	}
	return p.tracker.Code(), p.tracker.Message()
}

// Err returns the most recent failure, or nil.
func (p *Parser) Err() error {
	if p.destroyed {
		return errDestroyed()
	}
	if e := p.tracker.Err(); e != nil {
		return e
	}
	return nil
}

// ClearError forgets the most recent failure without resetting the parse.
// A halted parser stays halted.
func (p *Parser) ClearError() {
	if !p.destroyed && !p.halted {
		p.tracker.Reset()
	}
}

// Offset returns the stream offset of the first byte not yet consumed into
// a token.
func (p *Parser) Offset() uint64 {
	if p.destroyed {
		return 0
	}
	return p.buf.Offset()
}

// Pending returns the number of buffered bytes waiting for more input.
func (p *Parser) Pending() int {
	if p.destroyed {
		return 0
	}
	return p.buf.Len()
}

// State returns the name of the current state.
func (p *Parser) State() string {
	if p.destroyed {
		return ""
	}
	return p.grammar.StateName(p.machine.Current())
}

// Halted reports whether a lexical, structural or resource error stopped the
// parser.
func (p *Parser) Halted() bool {
	return p.halted
}

func errDestroyed() error {
	return failure.New(failure.KindInvalidHandle, failure.NoOffset, "parser used after Destroy")
}

func (p *Parser) enter() error {
	if p.destroyed {
		return errDestroyed()
	}
	if p.dispatching {
		return failure.New(failure.KindInvalidState, failure.NoOffset, "parser re-entered from its event handler")
	}
	return nil
}

// drain lexes and steps tokens until the buffer is empty or more input is
// needed. Compaction happens only after every event of this call has been
// dispatched.
func (p *Parser) drain(atEOF bool) error {
	for p.buf.Len() > 0 {
		offset := p.buf.Offset()
		r := p.lexer.Resume(&p.scan, p.buf.Bytes(), offset, atEOF)

		switch r.Status {
		case lexer.NeedMoreInput:
			p.buf.Compact()
			if err := p.buf.Hold(p.buf.Len()); err != nil {
				return p.fail(err)
			}
			return nil
		case lexer.NoMatch:
			return p.fail(failure.New(failure.KindLexical, offset, "unexpected byte %s in state %s",
				lexer.Describe(p.buf.Bytes()[:1]), p.grammar.StateName(p.machine.Current())))
		case lexer.Truncated:
			return p.fail(failure.Truncated(offset, "input ends inside a token: %s", lexer.Describe(p.buf.Bytes())))
		case lexer.Oversized:
			return p.fail(failure.New(failure.KindResource, offset, "token exceeds %d bytes", uint32(math.MaxUint32)))
		}

		if err := p.buf.Hold(int(r.Token.Length)); err != nil {
			return p.fail(err)
		}
		p.metrics.observeToken(p.grammar.Name(), r.Skip)
		if !r.Skip {
			if err := p.machine.Step(r.Token, p.dispatch); err != nil {
				return p.fail(err)
			}
			if p.destroyed {
				return errDestroyed()
			}
		}
		if err := p.buf.MarkConsumed(r.Token.End()); err != nil {
			return p.fail(err)
		}
	}
	p.buf.Compact()
	return nil
}

func (p *Parser) dispatch(kind EventKind, data []byte, offset uint64) {
	if p.destroyed {
		return
	}
	p.metrics.observeEvent(p.grammar.Name(), kind)
	if p.handler == nil {
		return
	}
	p.dispatching = true
	defer func() { p.dispatching = false }()
	p.handler.HandleEvent(Event{Kind: kind, Data: data, Offset: offset}, p.userData)
}

// fail records err, reports it to the handler and returns it. Lexical,
// structural and resource failures halt the parser.
func (p *Parser) fail(err error) error {
	e, ok := failure.As(err)
	if !ok {
		e = &failure.Error{
			Kind:    failure.KindNone,
			Code:    failure.CodeUnknown,
			Offset:  failure.NoOffset,
			Message: "internal error",
			Err:     err,
		}
	}

	p.tracker.Set(e)
	if e.Kind.Fatal() {
		p.halted = true
	}
	p.metrics.observeError(p.grammar.Name(), e.Kind)
	p.log.Debugf("%s", e)

	if p.destroyed {
		return errDestroyed()
	}
	offset := e.Offset
	if !e.HasOffset() {
		offset = p.buf.Offset()
	}
	p.dispatch(Error, []byte(e.Error()), offset)
	if p.destroyed {
		return errDestroyed()
	}
	return e
}
