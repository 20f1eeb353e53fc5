// Package ui serves the parser over HTTP: a small page for trying the
// built-in formats, a streaming parse endpoint, grammar checking and the
// parser metrics.
package ui

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/streamparse/engine"
	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/format"
	"github.com/dhamidi/streamparse/grammar"
	"github.com/dhamidi/streamparse/presets"
)

//go:embed templates
var embeddedFS embed.FS

var log = commonlog.GetLogger("streamparse.ui")

// CodeTrailer is the response trailer carrying the numeric result of a
// streamed parse.
const CodeTrailer = "Streamparse-Code"

// DefaultChunkSize is the number of request body bytes fed per call.
const DefaultChunkSize = 32 << 10

type Server struct {
	cache      *presets.Cache
	metrics    *engine.Metrics
	registry   *prometheus.Registry
	mux        *http.ServeMux
	templateFS fs.FS
	funcMap    template.FuncMap

	maxBody   int64
	maxBuffer int
	chunkSize int
}

type Option func(*Server)

// WithMaxBodySize limits the request bodies accepted for parsing and
// checking. Zero means no limit.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

// WithMaxBufferSize is passed on to every parser the server creates.
func WithMaxBufferSize(n int) Option {
	return func(s *Server) {
		s.maxBuffer = n
	}
}

func WithChunkSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func NewServer(cache *presets.Cache, opts ...Option) (*Server, error) {
	templateFS := overlayFS("ui/templates", mustSub(embeddedFS, "templates"))
	funcMap := template.FuncMap{
		"indent": func(depth int) string {
			return strings.Repeat("  ", depth)
		},
		"isError": func(k engine.EventKind) bool {
			return k == engine.Error
		},
	}

	if _, err := template.New("").Funcs(funcMap).ParseFS(templateFS, "*.html"); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		cache:      cache,
		metrics:    engine.NewMetrics(registry),
		registry:   registry,
		mux:        http.NewServeMux(),
		templateFS: templateFS,
		funcMap:    funcMap,
		chunkSize:  DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /parse/{format}", s.handleParse)
	s.mux.HandleFunc("POST /try", s.handleTry)
	s.mux.HandleFunc("POST /check", s.handleCheck)
	s.mux.HandleFunc("GET /presets/{format}", s.handlePreset)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	s.mux.HandleFunc("GET /{$}", s.handleIndex)

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, err := template.New("").Funcs(s.funcMap).ParseFS(s.templateFS, "*.html")
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Errorf("render %s: %s", name, err)
	}
}

func (s *Server) newParser(name string, h engine.Handler) (*engine.Parser, error) {
	g, err := s.cache.Lookup(name)
	if err != nil {
		return nil, err
	}
	return engine.New(g,
		engine.WithName(name),
		engine.WithHandler(h, nil),
		engine.WithMaxBufferSize(s.maxBuffer),
		engine.WithMetrics(s.metrics),
	)
}

func (s *Server) body(w http.ResponseWriter, r *http.Request) io.Reader {
	if s.maxBody > 0 {
		return http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	return r.Body
}

// handleParse streams the request body through the named format and writes
// the events as they are produced, as JSON lines or, when the client asks
// for text/plain, as text. The outcome is reported in a trailer since the
// status line is sent with the first event.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	out := "json"
	contentType := "application/x-ndjson"
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		out = "text"
		contentType = "text/plain; charset=utf-8"
	}
	enc, err := format.New(out, w, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	handler := &format.Handler{Encoder: enc}

	p, err := s.newParser(r.PathValue("format"), handler)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer p.Destroy()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Trailer", CodeTrailer)
	w.WriteHeader(http.StatusOK)

	err = feed(p, s.body(w, r), s.chunkSize, w)
	w.Header().Set(CodeTrailer, fmt.Sprint(int(failure.CodeOf(err))))
	if err != nil {
		log.Debugf("parse %s: %s", r.PathValue("format"), err)
	}
}

func feed(p *engine.Parser, r io.Reader, size int, w http.ResponseWriter) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := p.Feed(buf[:n]); ferr != nil {
				return ferr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return p.Finish()
		}
		if err != nil {
			e := failure.Wrap(failure.KindNone, failure.NoOffset, err, "read request body")
			e.Code = failure.CodeIO
			return e
		}
	}
}

type eventRow struct {
	Offset uint64
	Kind   engine.EventKind
	Data   string
	Depth  int
}

type tryResult struct {
	Formats []string
	Format  string
	Input   string
	Events  []eventRow
	Code    failure.Code
	Message string
}

// handleTry parses a form submission and renders the events as a page.
func (s *Server) handleTry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data: "+err.Error(), http.StatusBadRequest)
		return
	}
	data := tryResult{
		Formats: s.cache.Names(),
		Format:  r.FormValue("format"),
		Input:   r.FormValue("input"),
	}

	depth := 0
	collect := engine.HandlerFunc(func(ev engine.Event, _ any) {
		if ev.Kind == engine.EndElement && depth > 0 {
			depth--
		}
		data.Events = append(data.Events, eventRow{Offset: ev.Offset, Kind: ev.Kind, Data: string(ev.Data), Depth: depth})
		if ev.Kind == engine.StartElement {
			depth++
		}
	})

	p, err := s.newParser(data.Format, collect)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer p.Destroy()

	if err := p.Parse([]byte(data.Input)); err != nil {
		data.Code, data.Message = p.LastError()
	}
	s.render(w, "index.html", data)
}

type checkResult struct {
	Name        string   `json:"name,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Matchers    int      `json:"matchers,omitempty"`
	States      int      `json:"states,omitempty"`
	Code        int      `json:"code"`
	Problems    []string `json:"problems,omitempty"`
}

// handleCheck builds the grammar description in the request body and
// reports its fingerprint or its problems.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(s.body(w, r))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	f := grammar.FormatYAML
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		f = grammar.FormatJSON
	}

	var res checkResult
	status := http.StatusOK
	g, err := buildDescription(data, f)
	if err != nil {
		status = http.StatusUnprocessableEntity
		res.Code = int(failure.CodeOf(err))
		res.Problems = problems(err)
	} else {
		res.Name = g.Name()
		res.Fingerprint = fmt.Sprintf("%016x", g.Fingerprint())
		res.Matchers = len(g.Matchers())
		res.States = g.NumStates()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}

func buildDescription(data []byte, f grammar.Format) (*grammar.Grammar, error) {
	desc, err := grammar.ParseDescription(data, f)
	if err != nil {
		return nil, err
	}
	return grammar.Build(desc)
}

func problems(err error) []string {
	if e, ok := failure.As(err); ok && e.Err != nil {
		if joined, ok := e.Err.(interface{ Unwrap() []error }); ok {
			var out []string
			for _, p := range joined.Unwrap() {
				out = append(out, p.Error())
			}
			return out
		}
	}
	return []string{err.Error()}
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	src, err := s.cache.Source(r.PathValue("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(src)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	formats := s.cache.Names()
	data := tryResult{Formats: formats}
	if len(formats) > 0 {
		data.Format = formats[0]
	}
	s.render(w, "index.html", data)
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// overlayFS serves files from dir when it exists, falling back to the
// embedded copy, so templates can be edited without rebuilding.
type overlay struct {
	primary   fs.FS
	secondary fs.FS
}

func overlayFS(dir string, secondary fs.FS) fs.FS {
	return &overlay{primary: os.DirFS(dir), secondary: secondary}
}

func (o *overlay) Open(name string) (fs.File, error) {
	if f, err := o.primary.Open(name); err == nil {
		return f, nil
	}
	return o.secondary.Open(name)
}

func (o *overlay) ReadDir(name string) ([]fs.DirEntry, error) {
	entries := make(map[string]fs.DirEntry)
	for _, fsys := range []fs.FS{o.secondary, o.primary} {
		if list, err := fs.ReadDir(fsys, name); err == nil {
			for _, e := range list {
				entries[e.Name()] = e
			}
		}
	}
	result := make([]fs.DirEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, e)
	}
	return result, nil
}
