// Package engine runs a grammar over a byte stream and reports structural
// parse events.
//
// # Architecture
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Feed      │────▶│   Buffer    │────▶│   Lexer     │────▶│   Machine   │
//	│  (chunks)   │     │ (pending)   │     │  (tokens)   │     │  (states)   │
//	└─────────────┘     └─────────────┘     └─────────────┘     └─────────────┘
//	                                               │                   │
//	                                          skip types               ▼
//	                                          dropped here      ┌─────────────┐
//	                                                            │  Handler    │
//	                                                            │  (events)   │
//	                                                            └─────────────┘
//
// # Streaming Interface
//
// A Parser is created from a shared, immutable grammar.Grammar:
//
//	p, err := engine.New(g, engine.WithHandler(h, ctx))
//	err = p.Feed(chunk1)
//	err = p.Feed(chunk2)
//	err = p.Finish()
//	p.Destroy()
//
// Feed may be called any number of times with chunks of any size, including
// chunks that split a token. Bytes that cannot yet be classified stay in the
// parser's buffer until more input arrives or Finish is called. Feeding the
// chunks A and B produces exactly the events produced by feeding A‖B once.
//
// Finish signals end of input. Input that ends inside a token, or before the
// state machine reaches an accepting state, is reported as a truncation
// error.
//
// # Events
//
// Events are delivered synchronously, one at a time, in the order the state
// machine produces them. Event.Data aliases parser memory and is only valid
// during the HandleEvent call; use Event.Clone to retain it. Without a
// handler, events are dropped and parsing proceeds.
//
// # Errors
//
// Every failure is recorded in the parser's error tracker (see LastError),
// reported to the handler as an Error event carrying a message and offset,
// and returned as a *failure.Error. Lexical, structural and resource errors
// halt the parser until Reset; the engine never resynchronizes.
//
// # Concurrency
//
// A Parser is not safe for concurrent use and must not be re-entered from
// its own handler, except to call Destroy. A Grammar may be shared by
// parsers on different goroutines. The engine starts no goroutines.
package engine
