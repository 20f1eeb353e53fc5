// Package lsp serves parse diagnostics over the Language Server Protocol.
// Every open document is parsed against one grammar and the first failure,
// if any, is published as a diagnostic.
package lsp

import (
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/dhamidi/streamparse/engine"
	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
)

const lsName = "streamparse"

var log = commonlog.GetLogger("streamparse.lsp")

// GrammarFunc loads the grammar documents are checked against. It is called
// once at startup and again on every Reload.
type GrammarFunc func() (*grammar.Grammar, error)

type document struct {
	version *protocol.UInteger
	text    string
}

// Server checks open documents and publishes their diagnostics.
type Server struct {
	load    GrammarFunc
	handler protocol.Handler
	server  *server.Server
	version string

	mu        sync.Mutex
	grammar   *grammar.Grammar
	loadErr   error
	documents map[protocol.DocumentUri]*document
	notify    glsp.NotifyFunc
}

// NewServer creates a server using load to obtain its grammar.
func NewServer(version string, load GrammarFunc) *Server {
	s := &Server{
		load:      load,
		version:   version,
		documents: make(map[protocol.DocumentUri]*document),
	}
	s.handler = protocol.Handler{
		Initialize:            s.initialize,
		Initialized:           s.initialized,
		Shutdown:              s.shutdown,
		SetTrace:              s.setTrace,
		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,
		TextDocumentDidSave:   s.textDocumentDidSave,
	}
	s.server = server.NewServer(&s.handler, lsName, false)
	s.reloadGrammar()
	return s
}

// RunStdio serves requests on standard input and output until the client
// disconnects.
func (s *Server) RunStdio() error {
	return s.server.RunStdio()
}

// Reload loads the grammar again and re-checks every open document.
func (s *Server) Reload() {
	s.reloadGrammar()
	s.mu.Lock()
	notify := s.notify
	uris := make([]string, 0, len(s.documents))
	for uri := range s.documents {
		uris = append(uris, uri)
	}
	s.mu.Unlock()

	sort.Strings(uris)
	for _, uri := range uris {
		s.publish(notify, uri)
	}
}

func (s *Server) reloadGrammar() {
	g, err := s.load()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		log.Errorf("load grammar: %s", err)
		s.loadErr = err
		return
	}
	s.grammar = g
	s.loadErr = nil
	log.Infof("checking documents against %s", g)
}

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    intPtr(int(protocol.TextDocumentSyncKindFull)),
		Save: &protocol.SaveOptions{
			IncludeText: boolPtr(true),
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	s.mu.Lock()
	s.notify = ctx.Notify
	s.mu.Unlock()
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	version := protocol.UInteger(params.TextDocument.Version)
	s.update(ctx, params.TextDocument.URI, &version, params.TextDocument.Text)
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	version := protocol.UInteger(params.TextDocument.Version)
	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, &version, whole.Text)
		}
	}
	return nil
}

func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	if params.Text != nil {
		s.update(ctx, params.TextDocument.URI, nil, *params.Text)
	}
	return nil
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.mu.Lock()
	delete(s.documents, params.TextDocument.URI)
	s.mu.Unlock()

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *Server) update(ctx *glsp.Context, uri protocol.DocumentUri, version *protocol.UInteger, text string) {
	s.mu.Lock()
	doc, ok := s.documents[uri]
	if !ok {
		doc = &document{}
		s.documents[uri] = doc
	}
	if version != nil {
		doc.version = version
	}
	doc.text = text
	s.notify = ctx.Notify
	s.mu.Unlock()

	s.publish(ctx.Notify, uri)
}

func (s *Server) publish(notify glsp.NotifyFunc, uri protocol.DocumentUri) {
	if notify == nil {
		return
	}
	params, ok := s.diagnostics(uri)
	if !ok {
		return
	}
	notify(protocol.ServerTextDocumentPublishDiagnostics, params)
}

func (s *Server) diagnostics(uri protocol.DocumentUri) (protocol.PublishDiagnosticsParams, bool) {
	s.mu.Lock()
	doc, ok := s.documents[uri]
	if !ok {
		s.mu.Unlock()
		return protocol.PublishDiagnosticsParams{}, false
	}
	g, loadErr := s.grammar, s.loadErr
	text, version := doc.text, doc.version
	s.mu.Unlock()

	params := protocol.PublishDiagnosticsParams{URI: uri, Version: version}
	switch {
	case loadErr != nil:
		params.Diagnostics = []protocol.Diagnostic{grammarDiagnostic(loadErr)}
	case g == nil:
		params.Diagnostics = []protocol.Diagnostic{}
	default:
		params.Diagnostics = Diagnose(g, text)
	}
	log.Debugf("%s: %d diagnostics", uriToPath(uri), len(params.Diagnostics))
	return params, true
}

// Diagnose parses text against g and returns the resulting diagnostics:
// none for a well-formed document, otherwise one for the failure that
// stopped the parse.
func Diagnose(g *grammar.Grammar, text string) []protocol.Diagnostic {
	p, err := engine.New(g)
	if err != nil {
		return []protocol.Diagnostic{grammarDiagnostic(err)}
	}
	defer p.Destroy()

	err = p.Parse([]byte(text))
	if err == nil {
		return []protocol.Diagnostic{}
	}
	e, ok := failure.As(err)
	if !ok {
		e = failure.Wrap(failure.KindNone, failure.NoOffset, err, "parse")
		e.Code = failure.CodeUnknown
	}

	offset := uint64(len(text))
	if e.HasOffset() && e.Offset < offset {
		offset = e.Offset
	}
	start := Position(text, int(offset))
	end := start
	if offset < uint64(len(text)) && text[offset] != '\n' {
		end = Position(text, int(offset)+utf8RuneLen(text[offset:]))
	}

	return []protocol.Diagnostic{{
		Range:    protocol.Range{Start: start, End: end},
		Severity: severityPtr(protocol.DiagnosticSeverityError),
		Code:     &protocol.IntegerOrString{Value: protocol.Integer(e.Code)},
		Source:   strPtr(lsName),
		Message:  e.Message,
	}}
}

func grammarDiagnostic(err error) protocol.Diagnostic {
	return protocol.Diagnostic{
		Severity: severityPtr(protocol.DiagnosticSeverityError),
		Code:     &protocol.IntegerOrString{Value: protocol.Integer(failure.CodeOf(err))},
		Source:   strPtr(lsName),
		Message:  "grammar: " + err.Error(),
	}
}

// Position converts a byte offset in text to a protocol position. Lines
// are split on '\n' and characters are counted in UTF-16 code units.
func Position(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	line := strings.Count(text[:lineStart], "\n")

	var char int
	for _, r := range text[lineStart:offset] {
		if r >= 0x10000 {
			char += 2
		} else {
			char++
		}
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(char)}
}

func utf8RuneLen(s string) int {
	_, n := utf8.DecodeRuneInString(s)
	return n
}

func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *protocol.TextDocumentSyncKind {
	v := protocol.TextDocumentSyncKind(i)
	return &v
}

func strPtr(s string) *string {
	return &s
}

func severityPtr(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}
