package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Description is the declarative, untyped form of a grammar. Tokens and
// states are referenced by name; Build resolves names to ids.
type Description struct {
	Name          string        `json:"name" yaml:"name"`
	Productions   string        `json:"productions,omitempty" yaml:"productions,omitempty"`
	TokenMatchers []MatcherDesc `json:"token_matchers" yaml:"token_matchers"`
	SkipTypes     []string      `json:"skip_types,omitempty" yaml:"skip_types,omitempty"`
	States        []StateDesc   `json:"states" yaml:"states"`
	InitialState  string        `json:"initial_state" yaml:"initial_state"`
	AcceptStates  []string      `json:"accept_states,omitempty" yaml:"accept_states,omitempty"`
}

// MatcherDesc declares one token matcher. Exactly one of Literal, Class and
// Pattern must be set.
type MatcherDesc struct {
	Name     string  `json:"name" yaml:"name"`
	Literal  *string `json:"literal,omitempty" yaml:"literal,omitempty"`
	Class    string  `json:"class,omitempty" yaml:"class,omitempty"`
	Pattern  string  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Priority int     `json:"priority,omitempty" yaml:"priority,omitempty"`
	Min      int     `json:"min,omitempty" yaml:"min,omitempty"`
	Max      int     `json:"max,omitempty" yaml:"max,omitempty"`
}

// StateDesc declares one state. When Allowed is empty the allowed set is the
// set of tokens that have a transition.
type StateDesc struct {
	Name        string           `json:"name" yaml:"name"`
	Allowed     []string         `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Transitions []TransitionDesc `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// TransitionDesc declares the action for one token in a state.
type TransitionDesc struct {
	Token string      `json:"token" yaml:"token"`
	Emit  []EventDesc `json:"emit,omitempty" yaml:"emit,omitempty"`
	Next  string      `json:"next,omitempty" yaml:"next,omitempty"`
	Push  string      `json:"push,omitempty" yaml:"push,omitempty"`
	Pop   bool        `json:"pop,omitempty" yaml:"pop,omitempty"`
}

// EventDesc declares an emitted event. Data is "token", "inner", "none" or
// empty for the kind's default; Literal, when set, overrides Data.
//
// Both encodings also accept a bare string naming the kind.
type EventDesc struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Data    string  `json:"data,omitempty" yaml:"data,omitempty"`
	Literal *string `json:"literal,omitempty" yaml:"literal,omitempty"`
}

type eventDescFields EventDesc

func (e *EventDesc) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*e = EventDesc{Kind: value.Value}
		return nil
	}
	var fields eventDescFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	*e = EventDesc(fields)
	return nil
}

func (e *EventDesc) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var kind string
		if err := json.Unmarshal(trimmed, &kind); err != nil {
			return err
		}
		*e = EventDesc{Kind: kind}
		return nil
	}
	var fields eventDescFields
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	*e = EventDesc(fields)
	return nil
}

// Format is an encoding of a Description.
type Format int

const (
	FormatAuto Format = iota
	FormatJSON
	FormatYAML
)

// FormatForPath picks an encoding from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatAuto
	}
}

func sniffFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// ParseDescription decodes a description. Unknown fields are rejected.
func ParseDescription(data []byte, format Format) (*Description, error) {
	if format == FormatAuto {
		format = sniffFormat(data)
	}

	var desc Description
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&desc); err != nil {
			return nil, fmt.Errorf("decode json grammar: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&desc); err != nil {
			return nil, fmt.Errorf("decode yaml grammar: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown grammar format %d", format)
	}
	return &desc, nil
}

// LoadDescription reads and decodes a description file.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grammar: %w", err)
	}
	return ParseFile(path, data)
}

// ParseFile decodes data read from path. The encoding follows the file
// extension and an unnamed description is named after the file.
func ParseFile(path string, data []byte) (*Description, error) {
	desc, err := ParseDescription(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if desc.Name == "" {
		desc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return desc, nil
}

// LoadFile reads, decodes and builds a grammar file.
func LoadFile(path string) (*Grammar, error) {
	desc, err := LoadDescription(path)
	if err != nil {
		return nil, err
	}
	return Build(desc)
}
