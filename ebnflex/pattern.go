// Package ebnflex compiles EBNF expressions into byte-level automata used to
// recognize tokens in partially available input.
//
// A pattern is any expression accepted by golang.org/x/exp/ebnf: literals
// ("abc"), byte ranges ("a" … "z"), sequences, alternatives (|), options
// ([ ]), repetitions ({ }), groups (( )) and references to shared
// productions. Range bounds must be single bytes. Productions may not refer
// to themselves, directly or indirectly, so every pattern describes a
// regular language.
package ebnflex

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/ebnf"
)

// patternName is the production name used to wrap a pattern expression for
// the ebnf parser.
const patternName = "pattern"

type state struct {
	edge   bool
	lo, hi byte
	next   int
	eps    []int
	accept bool
}

// Pattern is a compiled pattern. It is immutable and safe for concurrent use.
type Pattern struct {
	source  string
	states  []state
	closure [][]int // epsilon closure of each state, restricted to states with a byte edge
	accepts []bool  // whether the epsilon closure of a state contains the final state
	start   int
}

// Source returns the expression the pattern was compiled from.
func (p *Pattern) Source() string {
	return p.source
}

// NumStates returns the number of automaton states.
func (p *Pattern) NumStates() int {
	return len(p.states)
}

// ParseProductions parses a set of shared productions that patterns may
// reference by name.
func ParseProductions(filename, src string) (ebnf.Grammar, error) {
	if strings.TrimSpace(src) == "" {
		return ebnf.Grammar{}, nil
	}
	grammar, err := ebnf.Parse(filename, strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse productions: %w", err)
	}
	return grammar, nil
}

// Compile parses src as a single EBNF expression and compiles it, resolving
// names against prods.
func Compile(src string, prods ebnf.Grammar) (*Pattern, error) {
	wrapped := patternName + " = " + src + " ."
	g, err := ebnf.Parse(patternName, strings.NewReader(wrapped))
	if err != nil {
		return nil, fmt.Errorf("parse pattern %q: %w", src, err)
	}
	prod := g[patternName]
	if prod == nil || prod.Expr == nil {
		return nil, fmt.Errorf("pattern %q is empty", src)
	}

	c := &compiler{
		prods:    prods,
		visiting: make(map[string]bool),
	}
	start, end, err := c.compile(prod.Expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", src, err)
	}
	c.states[end].accept = true

	p := &Pattern{
		source: src,
		states: c.states,
		start:  start,
	}
	p.computeClosures()
	return p, nil
}

type compiler struct {
	prods    ebnf.Grammar
	states   []state
	visiting map[string]bool
}

func (c *compiler) newState() int {
	c.states = append(c.states, state{})
	return len(c.states) - 1
}

func (c *compiler) epsilon(from, to int) {
	c.states[from].eps = append(c.states[from].eps, to)
}

func (c *compiler) byteEdge(from int, lo, hi byte, to int) {
	c.states[from].edge = true
	c.states[from].lo = lo
	c.states[from].hi = hi
	c.states[from].next = to
}

// compile returns the entry and exit state of the fragment for expr. The exit
// state has no outgoing edges when compile returns.
func (c *compiler) compile(expr ebnf.Expression) (int, int, error) {
	switch e := expr.(type) {
	case *ebnf.Token:
		start := c.newState()
		cur := start
		for i := 0; i < len(e.String); i++ {
			next := c.newState()
			c.byteEdge(cur, e.String[i], e.String[i], next)
			cur = next
		}
		if cur == start {
			end := c.newState()
			c.epsilon(start, end)
			return start, end, nil
		}
		return start, cur, nil

	case *ebnf.Range:
		lo, hi := e.Begin.String, e.End.String
		if len(lo) != 1 || len(hi) != 1 {
			return 0, 0, fmt.Errorf("%s: range bounds must be single bytes, got %q … %q", e.Pos(), lo, hi)
		}
		if lo[0] > hi[0] {
			return 0, 0, fmt.Errorf("%s: empty range %q … %q", e.Pos(), lo, hi)
		}
		start := c.newState()
		end := c.newState()
		c.byteEdge(start, lo[0], hi[0], end)
		return start, end, nil

	case ebnf.Sequence:
		start, end, err := c.compile(e[0])
		if err != nil {
			return 0, 0, err
		}
		for _, item := range e[1:] {
			s, t, err := c.compile(item)
			if err != nil {
				return 0, 0, err
			}
			c.epsilon(end, s)
			end = t
		}
		return start, end, nil

	case ebnf.Alternative:
		start := c.newState()
		end := c.newState()
		for _, alt := range e {
			s, t, err := c.compile(alt)
			if err != nil {
				return 0, 0, err
			}
			c.epsilon(start, s)
			c.epsilon(t, end)
		}
		return start, end, nil

	case *ebnf.Repetition:
		start := c.newState()
		end := c.newState()
		s, t, err := c.compile(e.Body)
		if err != nil {
			return 0, 0, err
		}
		c.epsilon(start, s)
		c.epsilon(start, end)
		c.epsilon(t, s)
		c.epsilon(t, end)
		return start, end, nil

	case *ebnf.Option:
		start := c.newState()
		end := c.newState()
		s, t, err := c.compile(e.Body)
		if err != nil {
			return 0, 0, err
		}
		c.epsilon(start, s)
		c.epsilon(start, end)
		c.epsilon(t, end)
		return start, end, nil

	case *ebnf.Group:
		return c.compile(e.Body)

	case *ebnf.Name:
		return c.compileName(e)

	case *ebnf.Bad:
		return 0, 0, fmt.Errorf("%s: %s", e.Pos(), e.Error)

	default:
		return 0, 0, fmt.Errorf("unsupported expression %T", expr)
	}
}

func (c *compiler) compileName(n *ebnf.Name) (int, int, error) {
	prod, ok := c.prods[n.String]
	if !ok || prod == nil {
		return 0, 0, fmt.Errorf("%s: undefined production %s", n.Pos(), n.String)
	}
	if prod.Expr == nil {
		return 0, 0, fmt.Errorf("%s: production %s is empty", n.Pos(), n.String)
	}
	if c.visiting[n.String] {
		return 0, 0, fmt.Errorf("%s: production %s is recursive", n.Pos(), n.String)
	}
	c.visiting[n.String] = true
	defer delete(c.visiting, n.String)
	return c.compile(prod.Expr)
}

func (p *Pattern) computeClosures() {
	n := len(p.states)
	p.closure = make([][]int, n)
	p.accepts = make([]bool, n)
	seen := make([]int, n)
	for i := range seen {
		seen[i] = -1
	}
	var stack []int
	for i := 0; i < n; i++ {
		var edges []int
		stack = append(stack[:0], i)
		seen[i] = i
		for len(stack) > 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			st := &p.states[s]
			if st.accept {
				p.accepts[i] = true
			}
			if st.edge {
				edges = append(edges, s)
			}
			for _, t := range st.eps {
				if seen[t] != i {
					seen[t] = i
					stack = append(stack, t)
				}
			}
		}
		sort.Ints(edges)
		p.closure[i] = edges
	}
}
