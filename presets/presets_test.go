package presets_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/streamparse/engine"
	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/presets"
)

func render(events []engine.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = strings.TrimSpace(fmt.Sprintf("%s %s", ev.Kind, ev.Data))
	}
	return out
}

func parseFormat(t *testing.T, format string, chunks ...string) ([]string, error) {
	t.Helper()
	rec := &engine.Recorder{}
	p, err := engine.NewForFormat(format, engine.WithHandler(rec, nil))
	require.NoError(t, err)
	defer p.Destroy()

	for _, c := range chunks {
		if err := p.Feed([]byte(c)); err != nil {
			return render(rec.Events), err
		}
	}
	err = p.Finish()
	return render(rec.Events), err
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"csv", "ini", "json"}, presets.Names())
}

func TestEveryPresetBuilds(t *testing.T) {
	for _, name := range presets.Names() {
		t.Run(name, func(t *testing.T) {
			g, err := presets.Lookup(name)
			require.NoError(t, err)
			assert.Equal(t, name, g.Name())
			for _, m := range g.Matchers() {
				assert.NotEmpty(t, m.Name, "matcher %d", m.ID)
			}

			again, err := presets.Lookup(name)
			require.NoError(t, err)
			assert.Same(t, g, again)
		})
	}
}

func TestUnknownPreset(t *testing.T) {
	_, err := presets.Lookup("toml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrInvalidArgument))
	assert.Contains(t, err.Error(), "csv, ini, json")

	_, err = engine.NewForFormat("toml")
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "nested",
			input: `{"a": [1, true, {"b": null}], "c": "d\"e"}`,
			want: []string{
				"START_DOCUMENT", "START_ELEMENT", "VALUE a",
				"START_ELEMENT", "VALUE 1", "VALUE true",
				"START_ELEMENT", "VALUE b", "VALUE null", "END_ELEMENT",
				"END_ELEMENT", "VALUE c", `VALUE d\"e`, "END_ELEMENT", "END_DOCUMENT",
			},
		},
		{
			name:  "scalar",
			input: ` -12.5e+3 `,
			want:  []string{"START_DOCUMENT", "VALUE -12.5e+3", "END_DOCUMENT"},
		},
		{
			name:  "empty containers",
			input: `[{}, []]`,
			want: []string{
				"START_DOCUMENT", "START_ELEMENT",
				"START_ELEMENT", "END_ELEMENT", "START_ELEMENT", "END_ELEMENT",
				"END_ELEMENT", "END_DOCUMENT",
			},
		},
		{
			name:  "unicode escape",
			input: `["é", "\u00e9"]`,
			want:  []string{"START_DOCUMENT", "START_ELEMENT", "VALUE é", `VALUE \u00e9`, "END_ELEMENT", "END_DOCUMENT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFormat(t, "json", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			for split := 1; split < len(tt.input); split++ {
				chunked, err := parseFormat(t, "json", tt.input[:split], tt.input[split:])
				require.NoError(t, err, "split at %d", split)
				assert.Equal(t, tt.want, chunked, "split at %d", split)
			}
		})
	}
}

func TestJSONErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  failure.Code
	}{
		{"missing colon", `{"a" 1}`, failure.CodeUnexpectedToken},
		{"trailing comma", `[1,]`, failure.CodeUnexpectedToken},
		{"mismatched close", `[1}`, failure.CodeUnexpectedToken},
		{"two documents", `1 2`, failure.CodeUnexpectedToken},
		{"bad literal", `[tru]`, failure.CodeUnexpectedToken},
		{"unterminated object", `{"a":1`, failure.CodeEOF},
		{"unterminated string", `["abc`, failure.CodeEOF},
		{"empty", ``, failure.CodeEOF},
		{"control character", "[\"a\x01\"]", failure.CodeUnexpectedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := parseFormat(t, "json", tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, failure.CodeOf(err))
			require.NotEmpty(t, events)
			assert.True(t, strings.HasPrefix(events[len(events)-1], "ERROR"))
			assert.NotContains(t, events, "END_DOCUMENT")
		})
	}
}

func TestJSONDepthLimit(t *testing.T) {
	deep := strings.Repeat("[", 10) + strings.Repeat("]", 10)

	p, err := engine.NewForFormat("json", engine.WithMaxDepth(5))
	require.NoError(t, err)
	err = p.Parse([]byte(deep))
	assert.True(t, errors.Is(err, failure.ErrResource))

	q, err := engine.NewForFormat("json")
	require.NoError(t, err)
	assert.NoError(t, q.Parse([]byte(deep)))
}

func TestCSV(t *testing.T) {
	input := "a,b\n\"c,d\",\n,\"x\"\"y\"\r\nlast"
	want := []string{
		"START_DOCUMENT",
		"START_ELEMENT", "VALUE a", "VALUE b", "END_ELEMENT",
		"START_ELEMENT", "VALUE c,d", "VALUE", "END_ELEMENT",
		"START_ELEMENT", "VALUE", `VALUE x""y`, "END_ELEMENT",
		"START_ELEMENT", "VALUE last", "END_ELEMENT",
		"END_DOCUMENT",
	}

	got, err := parseFormat(t, "csv", input)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	bytewise := strings.Split(input, "")
	got, err = parseFormat(t, "csv", bytewise...)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = parseFormat(t, "csv", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"START_DOCUMENT", "END_DOCUMENT"}, got)

	_, err = parseFormat(t, "csv", `a,"open`)
	assert.Equal(t, failure.CodeEOF, failure.CodeOf(err))
}

func TestINI(t *testing.T) {
	input := `; settings
name = top level
[server]
host = example.com
port=8080

[empty]
`
	want := []string{
		"START_DOCUMENT",
		"START_ELEMENT name", "VALUE top level", "END_ELEMENT",
		"START_ELEMENT server",
		"START_ELEMENT host", "VALUE example.com", "END_ELEMENT",
		"START_ELEMENT port", "VALUE 8080", "END_ELEMENT",
		"END_ELEMENT",
		"START_ELEMENT empty",
		"END_ELEMENT",
		"END_DOCUMENT",
	}

	got, err := parseFormat(t, "ini", input)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for split := 1; split < len(input); split++ {
		chunked, err := parseFormat(t, "ini", input[:split], input[split:])
		require.NoError(t, err, "split at %d", split)
		assert.Equal(t, want, chunked, "split at %d", split)
	}

	_, err = parseFormat(t, "ini", "key value\n")
	assert.Equal(t, failure.CodeUnexpectedToken, failure.CodeOf(err))
}

const wordsGrammar = `
token_matchers:
  - {name: WORD, class: a-z}
  - {name: WS, class: ' '}
skip_types: [WS]
states:
  - name: words
    transitions:
      - {token: WORD, emit: [value], next: words}
initial_state: words
`

func TestCacheLoadFile(t *testing.T) {
	c, err := presets.NewCache(4)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "words.yaml")
	require.NoError(t, os.WriteFile(file, []byte(wordsGrammar), 0o644))

	g, err := c.LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "words", g.Name())

	same, err := c.LoadFile(file)
	require.NoError(t, err)
	assert.Same(t, g, same)

	edited := strings.Replace(wordsGrammar, "a-z", "a-zA-Z", 1)
	require.NoError(t, os.WriteFile(file, []byte(edited), 0o644))
	rebuilt, err := c.LoadFile(file)
	require.NoError(t, err)
	assert.NotSame(t, g, rebuilt)
	assert.NotEqual(t, g.Fingerprint(), rebuilt.Fingerprint())
	assert.Equal(t, 2, c.Len())

	_, err = c.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	g, err := presets.Resolve("", "csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", g.Name())

	_, err = presets.Resolve("", "")
	assert.True(t, errors.Is(err, failure.ErrInvalidArgument))
	_, err = presets.Resolve("g.yaml", "csv")
	assert.True(t, errors.Is(err, failure.ErrInvalidArgument))
}
