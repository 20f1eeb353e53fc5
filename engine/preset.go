package engine

import (
	"github.com/dhamidi/streamparse/presets"
)

// NewForFormat creates a parser for a preset format such as "json", "csv"
// or "ini".
func NewForFormat(name string, opts ...Option) (*Parser, error) {
	g, err := presets.Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(g, append([]Option{WithName(name)}, opts...)...)
}
