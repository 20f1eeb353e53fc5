package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/dhamidi/streamparse/engine"
	"github.com/dhamidi/streamparse/grammar"
	"github.com/dhamidi/streamparse/lexer"
)

// LineEncoder writes one tab-separated line per event: offset, kind and the
// quoted data. Lines are indented by element depth.
type LineEncoder struct {
	w     io.Writer
	event engine.Event
	depth int

	offset *color.Color
	kinds  map[engine.EventKind]*color.Color
}

func NewLineEncoder(w io.Writer) *LineEncoder {
	e := &LineEncoder{
		w:      w,
		offset: color.New(color.Faint),
		kinds: map[engine.EventKind]*color.Color{
			engine.StartDocument: color.New(color.FgMagenta),
			engine.EndDocument:   color.New(color.FgMagenta),
			engine.StartElement:  color.New(color.FgCyan),
			engine.EndElement:    color.New(color.FgCyan),
			engine.Value:         color.New(color.FgGreen),
			engine.Error:         color.New(color.FgRed, color.Bold),
		},
	}
	e.SetColor(false)
	return e
}

// SetColor turns ANSI colors on or off regardless of the terminal.
func (e *LineEncoder) SetColor(on bool) {
	all := []*color.Color{e.offset}
	for _, c := range e.kinds {
		all = append(all, c)
	}
	for _, c := range all {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (e *LineEncoder) Encode(ev engine.Event) error {
	if ev.Kind == engine.EndElement && e.depth > 0 {
		e.depth--
	}
	e.event = ev
	text, err := e.MarshalText()
	if err != nil {
		return err
	}
	if ev.Kind == engine.StartElement {
		e.depth++
	}
	_, err = e.w.Write(text)
	return err
}

func (e *LineEncoder) MarshalText() ([]byte, error) {
	var sb strings.Builder
	ev := e.event

	kind := ev.Kind.String()
	if c, ok := e.kinds[ev.Kind]; ok {
		kind = c.Sprint(kind)
	}
	fmt.Fprintf(&sb, "%s\t%s%s", e.offset.Sprint(ev.Offset), strings.Repeat("  ", e.depth), kind)
	if ev.Data != nil {
		fmt.Fprintf(&sb, "\t%s", strconv.Quote(string(ev.Data)))
	}
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

// TokenEncoder writes one line per token: offset, length, token name and the
// quoted payload. Skipped tokens are marked.
type TokenEncoder struct {
	w       io.Writer
	grammar *grammar.Grammar
}

func NewTokenEncoder(w io.Writer, g *grammar.Grammar) *TokenEncoder {
	return &TokenEncoder{w: w, grammar: g}
}

func (e *TokenEncoder) Encode(tok lexer.Token) error {
	mark := ""
	if e.grammar.IsSkip(tok.Type) {
		mark = "\tskip"
	}
	_, err := fmt.Fprintf(e.w, "%d\t%d\t%s\t%s%s\n",
		tok.Offset, tok.Length, e.grammar.TokenName(tok.Type), strconv.Quote(string(tok.Payload)), mark)
	return err
}
