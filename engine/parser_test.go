package engine

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
	"github.com/dhamidi/streamparse/presets"
)

// objectGrammar accepts a single flat object of string pairs.
const objectGrammar = `
name: object
token_matchers:
  - name: OBJ_OPEN
    literal: "{"
  - name: OBJ_CLOSE
    literal: "}"
  - name: STRING
    pattern: '"\"" { " " … "!" | "#" … "~" } "\""'
  - name: COLON
    literal: ":"
  - name: COMMA
    literal: ","
  - name: WS
    class: " \t\r\n"
skip_types: [WS]
states:
  - name: start
    transitions:
      - token: OBJ_OPEN
        emit: [start_element]
        next: first_key
  - name: first_key
    transitions:
      - token: STRING
        emit: [{kind: value, data: inner}]
        next: colon
      - token: OBJ_CLOSE
        emit: [end_element, end_document]
        next: done
  - name: key
    transitions:
      - token: STRING
        emit: [{kind: value, data: inner}]
        next: colon
  - name: colon
    transitions:
      - token: COLON
        next: value
  - name: value
    transitions:
      - token: STRING
        emit: [{kind: value, data: inner}]
        next: after_value
  - name: after_value
    transitions:
      - token: COMMA
        next: key
      - token: OBJ_CLOSE
        emit: [end_element, end_document]
        next: done
  - name: done
initial_state: start
accept_states: [done]
`

func buildObjectGrammar(t *testing.T) *grammar.Grammar {
	t.Helper()
	desc, err := grammar.ParseDescription([]byte(objectGrammar), grammar.FormatYAML)
	require.NoError(t, err)
	g, err := grammar.Build(desc)
	require.NoError(t, err)
	return g
}

func newRecordingParser(t *testing.T, g *grammar.Grammar, opts ...Option) (*Parser, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	p, err := New(g, append([]Option{WithHandler(rec, nil)}, opts...)...)
	require.NoError(t, err)
	return p, rec
}

func feedChunks(p *Parser, chunks ...string) error {
	for _, c := range chunks {
		if err := p.Feed([]byte(c)); err != nil {
			return err
		}
	}
	return p.Finish()
}

func TestParserObjectScenario(t *testing.T) {
	g := buildObjectGrammar(t)
	want := []Event{
		{Kind: StartElement, Offset: 0},
		{Kind: Value, Data: []byte("a"), Offset: 1},
		{Kind: Value, Data: []byte("b"), Offset: 5},
		{Kind: EndElement, Offset: 8},
		{Kind: EndDocument, Offset: 8},
	}

	tests := []struct {
		name   string
		chunks []string
	}{
		{"one call", []string{`{"a":"b"}`}},
		{"per token", []string{`{`, `"a"`, `:`, `"b"`, `}`}},
		{"mid token", []string{`{"`, `a":"`, `b`, `"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newRecordingParser(t, g)
			require.NoError(t, feedChunks(p, tt.chunks...))
			assert.Equal(t, want, rec.Events)

			code, msg := p.LastError()
			assert.Equal(t, failure.CodeOK, code)
			assert.Empty(t, msg)
		})
	}
}

func TestParserChunkInvariance(t *testing.T) {
	g := buildObjectGrammar(t)
	inputs := []string{
		`{"a":"b"}`,
		`{ "key" : "value" , "k2":"v2" }`,
		"{\n\t\"x\": \"y z\"\r\n}",
		`{}`,
		`{"a":"b"`,
		`{"a" "b"}`,
		`{"a":"b"}}`,
		`{"a":"b`,
		`{"a":?}`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			whole, wholeRec := newRecordingParser(t, g)
			wholeErr := feedChunks(whole, input)
			wholeCode, _ := whole.LastError()

			for split := 0; split <= len(input); split++ {
				p, rec := newRecordingParser(t, g)
				err := feedChunks(p, input[:split], input[split:])
				code, _ := p.LastError()
				assert.Equal(t, wholeRec.Events, rec.Events, "split at %d", split)
				assert.Equal(t, wholeErr == nil, err == nil, "split at %d", split)
				assert.Equal(t, wholeCode, code, "split at %d", split)
			}

			bytewise := make([]string, len(input))
			for i := range input {
				bytewise[i] = input[i : i+1]
			}
			p, rec := newRecordingParser(t, g)
			err := feedChunks(p, bytewise...)
			assert.Equal(t, wholeRec.Events, rec.Events, "byte at a time")
			assert.Equal(t, wholeErr == nil, err == nil, "byte at a time")
		})
	}
}

func TestParserSkipTypesProduceNoEvents(t *testing.T) {
	g := buildObjectGrammar(t)

	compact, compactRec := newRecordingParser(t, g)
	require.NoError(t, compact.Parse([]byte(`{"a":"b"}`)))
	spaced, spacedRec := newRecordingParser(t, g)
	require.NoError(t, spaced.Parse([]byte(" {  \"a\"\n:\t\"b\" } ")))

	assert.Equal(t, compactRec.Kinds(), spacedRec.Kinds())
	for i := range compactRec.Events {
		assert.Equal(t, compactRec.Events[i].Data, spacedRec.Events[i].Data)
	}
}

func TestParserIsDeterministic(t *testing.T) {
	g := buildObjectGrammar(t)
	input := []byte(`{"one":"1","two":"2","three":"3"}`)

	var first []Event
	for i := 0; i < 5; i++ {
		p, rec := newRecordingParser(t, g)
		require.NoError(t, p.Parse(input))
		if first == nil {
			first = rec.Events
			continue
		}
		assert.Equal(t, first, rec.Events)
	}
}

func TestParserIllegalTokenHalts(t *testing.T) {
	g := buildObjectGrammar(t)
	p, rec := newRecordingParser(t, g)

	err := p.Feed([]byte(`{:`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrStructural))
	assert.True(t, p.Halted())

	require.Len(t, rec.Events, 2)
	assert.Equal(t, StartElement, rec.Events[0].Kind)
	assert.Equal(t, Error, rec.Events[1].Kind)
	assert.Equal(t, uint64(1), rec.Events[1].Offset)
	assert.Contains(t, string(rec.Events[1].Data), "unexpected COLON")

	code, msg := p.LastError()
	assert.Equal(t, failure.CodeUnexpectedToken, code)
	assert.Contains(t, msg, "first_key")

	// Further input produces no events and reports the same failure.
	err = p.Feed([]byte(`"a":"b"}`))
	require.Error(t, err)
	err = p.Finish()
	require.Error(t, err)
	assert.Len(t, rec.Events, 2)
}

func TestParserLexicalError(t *testing.T) {
	g := buildObjectGrammar(t)
	p, rec := newRecordingParser(t, g)

	err := p.Parse([]byte(`{"a":?}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrLexical))

	e, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), e.Offset)
	assert.Equal(t, failure.CodeUnexpectedToken, e.Code)
	assert.Equal(t, Error, rec.Events[len(rec.Events)-1].Kind)
}

func TestParserTruncation(t *testing.T) {
	g := buildObjectGrammar(t)

	tests := []struct {
		name  string
		input string
	}{
		{"inside token", `{"a`},
		{"between tokens", `{"a"`},
		{"empty input", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newRecordingParser(t, g)
			require.NoError(t, p.Feed([]byte(tt.input)))

			err := p.Finish()
			require.Error(t, err)
			code, _ := p.LastError()
			assert.Equal(t, failure.CodeEOF, code)
			require.NotEmpty(t, rec.Events)
			assert.Equal(t, Error, rec.Events[len(rec.Events)-1].Kind)
			for _, ev := range rec.Events {
				assert.NotEqual(t, EndDocument, ev.Kind)
			}
		})
	}
}

func TestParserDestroyWithoutFinish(t *testing.T) {
	g := buildObjectGrammar(t)

	p, rec := newRecordingParser(t, g)
	require.NoError(t, p.Feed([]byte(`{"a"`)))
	code, _ := p.LastError()
	require.Equal(t, failure.CodeOK, code)
	require.NoError(t, p.Destroy())
	for _, ev := range rec.Events {
		assert.NotEqual(t, Error, ev.Kind)
	}

	q, _ := newRecordingParser(t, g)
	require.NoError(t, q.Feed([]byte(`{"a"`)))
	err := q.Finish()
	require.Error(t, err)
	code, _ = q.LastError()
	assert.Equal(t, failure.CodeEOF, code)
	require.NoError(t, q.Destroy())
}

func TestParserUseAfterDestroy(t *testing.T) {
	g := buildObjectGrammar(t)
	p, _ := newRecordingParser(t, g)
	require.NoError(t, p.Destroy())

	for name, call := range map[string]func() error{
		"feed":    func() error { return p.Feed([]byte("{")) },
		"finish":  p.Finish,
		"reset":   p.Reset,
		"destroy": p.Destroy,
		"handler": func() error { return p.SetHandler(nil, nil) },
	} {
		err := call()
		assert.True(t, errors.Is(err, failure.ErrInvalidHandle), name)
	}
	code, _ := p.LastError()
	assert.Equal(t, failure.CodeInvalidHandle, code)
}

func TestParserDestroyFromHandler(t *testing.T) {
	g := buildObjectGrammar(t)
	var p *Parser
	var seen []EventKind
	p, err := New(g, WithHandler(HandlerFunc(func(ev Event, _ any) {
		seen = append(seen, ev.Kind)
		if ev.Kind == Value {
			require.NoError(t, p.Destroy())
		}
	}), nil))
	require.NoError(t, err)

	err = p.Feed([]byte(`{"a":"b"}`))
	assert.True(t, errors.Is(err, failure.ErrInvalidHandle))
	assert.Equal(t, []EventKind{StartElement, Value}, seen)
}

func TestParserReentrantFeedIsRejected(t *testing.T) {
	g := buildObjectGrammar(t)
	var p *Parser
	var inner error
	p, err := New(g, WithHandler(HandlerFunc(func(ev Event, _ any) {
		if ev.Kind == StartElement {
			inner = p.Feed([]byte("}"))
		}
	}), nil))
	require.NoError(t, err)

	require.NoError(t, p.Parse([]byte(`{}`)))
	assert.True(t, errors.Is(inner, failure.ErrInvalidState))
}

func TestParserFeedAfterFinish(t *testing.T) {
	g := buildObjectGrammar(t)
	p, _ := newRecordingParser(t, g)
	require.NoError(t, p.Parse([]byte(`{}`)))

	err := p.Feed([]byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrInvalidState))
	code, _ := p.LastError()
	assert.Equal(t, failure.CodeInvalidState, code)
	assert.False(t, p.Halted())
}

func TestParserErrorPersistsUntilCleared(t *testing.T) {
	g := buildObjectGrammar(t)
	p, _ := newRecordingParser(t, g)
	require.NoError(t, p.Parse([]byte(`{}`)))
	require.Error(t, p.Finish())

	code, _ := p.LastError()
	assert.Equal(t, failure.CodeInvalidState, code)
	p.ClearError()
	code, _ = p.LastError()
	assert.Equal(t, failure.CodeOK, code)
}

func TestParserReset(t *testing.T) {
	g := buildObjectGrammar(t)
	p, rec := newRecordingParser(t, g)

	require.Error(t, p.Parse([]byte(`}`)))
	require.True(t, p.Halted())

	require.NoError(t, p.Reset())
	rec.Reset()
	assert.False(t, p.Halted())
	assert.Equal(t, "start", p.State())
	assert.Equal(t, uint64(0), p.Offset())
	code, _ := p.LastError()
	assert.Equal(t, failure.CodeOK, code)

	require.NoError(t, p.Parse([]byte(`{"a":"b"}`)))
	assert.Equal(t, []EventKind{StartElement, Value, Value, EndElement, EndDocument}, rec.Kinds())
}

func TestParserNilHandler(t *testing.T) {
	g := buildObjectGrammar(t)
	p, err := New(g)
	require.NoError(t, err)
	require.NoError(t, p.Parse([]byte(`{"a":"b"}`)))
	assert.Equal(t, "done", p.State())

	_, err = New(nil)
	assert.True(t, errors.Is(err, failure.ErrInvalidArgument))
}

func TestParserHandlerReceivesUserData(t *testing.T) {
	g := buildObjectGrammar(t)
	type counter struct{ n int }
	c := &counter{}

	p, err := New(g)
	require.NoError(t, err)
	require.NoError(t, p.SetHandler(HandlerFunc(func(_ Event, userData any) {
		userData.(*counter).n++
	}), c))
	require.NoError(t, p.Parse([]byte(`{"a":"b"}`)))
	assert.Equal(t, 5, c.n)
}

func TestParserBufferLimit(t *testing.T) {
	g := buildObjectGrammar(t)
	p, rec := newRecordingParser(t, g, WithMaxBufferSize(4))

	require.NoError(t, p.Feed([]byte(`{`)))
	require.NoError(t, p.Feed([]byte(`"ab`)))
	err := p.Feed([]byte(`cd`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrResource))
	assert.True(t, p.Halted())
	code, _ := p.LastError()
	assert.Equal(t, failure.CodeOutOfMemory, code)
	assert.Equal(t, Error, rec.Events[len(rec.Events)-1].Kind)
}

func TestParserBufferLimitCountsTokensNotChunks(t *testing.T) {
	g := buildObjectGrammar(t)

	tests := []struct {
		name   string
		input  string
		offset uint64
	}{
		{name: "short tokens", input: `{"a":"b", "cd":"ef"}`},
		{name: "long key", input: `{"abcd":"b"}`, offset: 1},
		{name: "long value", input: `{"a":"bcde"}`, offset: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			whole, _ := newRecordingParser(t, g, WithMaxBufferSize(4))
			wholeErr := whole.Parse([]byte(tt.input))

			bytewise, _ := newRecordingParser(t, g, WithMaxBufferSize(4))
			bytewiseErr := feedChunks(bytewise, strings.Split(tt.input, "")...)

			if tt.offset == 0 {
				assert.NoError(t, wholeErr)
				assert.NoError(t, bytewiseErr)
				return
			}
			for _, err := range []error{wholeErr, bytewiseErr} {
				require.Error(t, err)
				assert.True(t, errors.Is(err, failure.ErrResource))
				e, ok := failure.As(err)
				require.True(t, ok)
				assert.Equal(t, tt.offset, e.Offset)
			}
		})
	}
}

func TestParserResumesUndecidedToken(t *testing.T) {
	g := buildObjectGrammar(t)
	p, rec := newRecordingParser(t, g)

	require.NoError(t, p.Feed([]byte(`{"`)))
	for i, c := range "abcdef" {
		require.NoError(t, p.Feed([]byte(string(c))))
		assert.Equal(t, i+2, p.scan.Examined())
		assert.Equal(t, p.Pending(), p.scan.Examined())
	}
	require.NoError(t, feedChunks(p, `":"x"}`))
	assert.Equal(t, 0, p.scan.Examined())
	assert.Equal(t, "abcdef", string(rec.Events[1].Data))

	require.NoError(t, p.Reset())
	require.NoError(t, p.Feed([]byte(`{"ab`)))
	require.NoError(t, p.Reset())
	assert.Equal(t, 0, p.scan.Examined())
	require.NoError(t, p.Parse([]byte(`{}`)))
}

func TestParserSharesGrammarAcrossGoroutines(t *testing.T) {
	g, err := presets.Lookup("json")
	require.NoError(t, err)
	input := `{"a": [1, 2.5, true, null, {"b": "c\"d"}], "e": []}`

	want, wantRec := newRecordingParser(t, g)
	require.NoError(t, want.Parse([]byte(input)))

	const workers = 8
	results := make([][]Event, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rec := &Recorder{}
			p, err := New(g, WithHandler(rec, nil))
			if err != nil {
				errs[w] = err
				return
			}
			defer p.Destroy()

			size := w + 1
			for i := 0; i < len(input); i += size {
				if err := p.Feed([]byte(input[i:min(i+size, len(input))])); err != nil {
					errs[w] = err
					return
				}
			}
			errs[w] = p.Finish()
			results[w] = rec.Events
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.NoError(t, errs[w], "worker %d", w)
		assert.Equal(t, wantRec.Events, results[w], "worker %d", w)
	}
}

func TestParserPendingBytes(t *testing.T) {
	g := buildObjectGrammar(t)
	p, _ := newRecordingParser(t, g)

	require.NoError(t, p.Feed([]byte(`{"ab`)))
	assert.Equal(t, 3, p.Pending())
	assert.Equal(t, uint64(1), p.Offset())
	require.NoError(t, p.Feed([]byte(`"`)))
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, uint64(5), p.Offset())
	assert.Equal(t, "colon", p.State())
}

func TestParserMetrics(t *testing.T) {
	g := buildObjectGrammar(t)
	m := NewMetrics(prometheus.NewRegistry())

	p, _ := newRecordingParser(t, g, WithMetrics(m), WithName("metrics-test"))
	require.NoError(t, p.Parse([]byte(`{ "a":"b" }`)))
	q, _ := newRecordingParser(t, g, WithMetrics(m))
	require.Error(t, q.Parse([]byte(`}`)))

	assert.Equal(t, 12.0, testutil.ToFloat64(m.bytesTotal.WithLabelValues("object")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.tokensTotal.WithLabelValues("object", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tokensTotal.WithLabelValues("object", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("object", "VALUE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("object", "ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("object", "structural")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.bufferPeakSize.WithLabelValues("object")))
}
