package lexer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
)

const keywordGrammar = `
name: keywords
productions: |
  letter = "a" … "z" .
token_matchers:
  - name: "TRUE"
    literal: "true"
    priority: 1
  - name: AB
    literal: "ab"
  - name: IDENT
    pattern: 'letter { letter }'
  - name: STRING
    pattern: '"\"" { letter } "\""'
  - name: WS
    class: " \n"
skip_types: [WS]
states:
  - name: any
initial_state: any
`

func newLexer(t *testing.T) (*Lexer, *grammar.Grammar) {
	t.Helper()
	desc, err := grammar.ParseDescription([]byte(keywordGrammar), grammar.FormatYAML)
	require.NoError(t, err)
	g, err := grammar.Build(desc)
	require.NoError(t, err)
	return New(g), g
}

func TestNext(t *testing.T) {
	l, g := newLexer(t)

	tests := []struct {
		name   string
		input  string
		atEOF  bool
		status Status
		token  string
		text   string
		skip   bool
	}{
		{name: "higher priority wins", input: "true ", status: Matched, token: "TRUE", text: "true"},
		{name: "complete keyword wins over longer identifier", input: "truex ", status: Matched, token: "TRUE", text: "true"},
		{name: "priority falls through on reject", input: "trux ", status: Matched, token: "IDENT", text: "trux"},
		{name: "undecided prefix", input: "tru", status: NeedMoreInput},
		{name: "prefix resolved at eof", input: "tru", atEOF: true, status: Matched, token: "IDENT", text: "tru"},
		{name: "declaration order breaks ties", input: "abc ", status: Matched, token: "AB", text: "ab"},
		{name: "identifier may continue", input: "xyz", status: NeedMoreInput},
		{name: "identifier at eof", input: "xyz", atEOF: true, status: Matched, token: "IDENT", text: "xyz"},
		{name: "closed string", input: `"ok"`, status: Matched, token: "STRING", text: `"ok"`},
		{name: "open string", input: `"ok`, status: NeedMoreInput},
		{name: "open string at eof", input: `"ok`, atEOF: true, status: Truncated},
		{name: "skip token", input: "  \nx", status: Matched, token: "WS", text: "  \n", skip: true},
		{name: "no matcher applies", input: "!", status: NoMatch},
		{name: "no matcher applies at eof", input: "!", atEOF: true, status: NoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := l.Next([]byte(tt.input), 10, tt.atEOF)
			require.Equal(t, tt.status, r.Status)
			if tt.status != Matched {
				return
			}
			assert.Equal(t, tt.token, g.TokenName(r.Token.Type))
			assert.Equal(t, tt.text, string(r.Token.Payload))
			assert.Equal(t, uint64(10), r.Token.Offset)
			assert.Equal(t, uint32(len(tt.text)), r.Token.Length)
			assert.Equal(t, uint64(10+len(tt.text)), r.Token.End())
			assert.Equal(t, tt.skip, r.Skip)
		})
	}
}

func TestResume(t *testing.T) {
	l, g := newLexer(t)

	tests := []struct {
		name   string
		chunks []string
		token  string
		text   string
	}{
		{name: "string in pieces", chunks: []string{`"`, `"o`, `"ok`, `"ok"!`}, token: "STRING", text: `"ok"`},
		{name: "keyword falls through to identifier", chunks: []string{"t", "tr", "trux "}, token: "IDENT", text: "trux"},
		{name: "keyword completes", chunks: []string{"tr", "true,"}, token: "TRUE", text: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Scan
			for _, c := range tt.chunks[:len(tt.chunks)-1] {
				r := l.Resume(&s, []byte(c), 7, false)
				require.Equal(t, NeedMoreInput, r.Status, "chunk %q", c)
				assert.Equal(t, len(c), s.Examined())
			}
			last := tt.chunks[len(tt.chunks)-1]
			r := l.Resume(&s, []byte(last), 7, false)
			require.Equal(t, Matched, r.Status)
			assert.Equal(t, tt.token, g.TokenName(r.Token.Type))
			assert.Equal(t, tt.text, string(r.Token.Payload))
			assert.Equal(t, uint64(7), r.Token.Offset)
			assert.Zero(t, s.Examined())

			var fresh Scan
			assert.Equal(t, l.Next([]byte(last), 7, false), l.Resume(&fresh, []byte(last), 7, false))
		})
	}
}

func TestResumeAtNewOffsetStartsOver(t *testing.T) {
	l, g := newLexer(t)

	var s Scan
	require.Equal(t, NeedMoreInput, l.Resume(&s, []byte(`"ab`), 0, false).Status)
	r := l.Resume(&s, []byte("ab "), 3, false)
	require.Equal(t, Matched, r.Status)
	assert.Equal(t, "AB", g.TokenName(r.Token.Type))
}

func TestTokenize(t *testing.T) {
	l, g := newLexer(t)

	tokens, err := l.Tokenize([]byte(`true "s" abc`))
	require.NoError(t, err)

	var names []string
	var offsets []uint64
	for _, tok := range tokens {
		names = append(names, g.TokenName(tok.Type))
		offsets = append(offsets, tok.Offset)
	}
	assert.Equal(t, []string{"TRUE", "WS", "STRING", "WS", "AB", "IDENT"}, names)
	assert.Equal(t, []uint64{0, 4, 5, 8, 9, 11}, offsets)
}

func TestTokenizeErrors(t *testing.T) {
	l, _ := newLexer(t)

	tokens, err := l.Tokenize([]byte(`ab "open`))
	require.Error(t, err)
	assert.Len(t, tokens, 2)
	assert.Equal(t, failure.CodeEOF, failure.CodeOf(err))

	_, err = l.Tokenize([]byte(`ab ?`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrLexical))
	assert.Equal(t, failure.CodeUnexpectedToken, failure.CodeOf(err))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `"ab"`, Describe([]byte("ab")))
	assert.Equal(t, `"0123456789abcdef"...`, Describe([]byte("0123456789abcdefXYZ")))
}
