package grammar

import (
	"fmt"
	"strconv"

	"github.com/dhamidi/streamparse/ebnflex"
)

// ByteSet is a set of byte values.
type ByteSet [4]uint64

func (s *ByteSet) Add(b byte) {
	s[b>>6] |= 1 << (b & 63)
}

func (s *ByteSet) AddRange(lo, hi byte) {
	for c := int(lo); c <= int(hi); c++ {
		s.Add(byte(c))
	}
}

func (s ByteSet) Contains(b byte) bool {
	return s[b>>6]&(1<<(b&63)) != 0
}

func (s ByteSet) Len() int {
	n := 0
	for c := 0; c < 256; c++ {
		if s.Contains(byte(c)) {
			n++
		}
	}
	return n
}

func (s ByteSet) complement() ByteSet {
	return ByteSet{^s[0], ^s[1], ^s[2], ^s[3]}
}

// ParseByteSet parses a bracket-style class body such as "a-zA-Z_" or
// "^\"\\". A leading ^ negates the set. Supported escapes are \t \n \r \\
// \- \] \^ and \xHH.
func ParseByteSet(src string) (ByteSet, error) {
	var set ByteSet
	if src == "" {
		return set, fmt.Errorf("empty character class")
	}
	negate := false
	i := 0
	if src[0] == '^' {
		negate = true
		i = 1
	}

	next := func() (byte, error) {
		c := src[i]
		i++
		if c != '\\' {
			return c, nil
		}
		if i >= len(src) {
			return 0, fmt.Errorf("character class %q: trailing backslash", src)
		}
		e := src[i]
		i++
		switch e {
		case 't':
			return '\t', nil
		case 'n':
			return '\n', nil
		case 'r':
			return '\r', nil
		case '\\', '-', ']', '^':
			return e, nil
		case 'x':
			if i+2 > len(src) {
				return 0, fmt.Errorf("character class %q: short \\x escape", src)
			}
			v, err := strconv.ParseUint(src[i:i+2], 16, 8)
			if err != nil {
				return 0, fmt.Errorf("character class %q: bad \\x escape: %w", src, err)
			}
			i += 2
			return byte(v), nil
		default:
			return 0, fmt.Errorf("character class %q: unknown escape \\%c", src, e)
		}
	}

	if i >= len(src) {
		return set, fmt.Errorf("character class %q: nothing after ^", src)
	}
	for i < len(src) {
		lo, err := next()
		if err != nil {
			return set, err
		}
		if i+1 < len(src) && src[i] == '-' {
			i++
			hi, err := next()
			if err != nil {
				return set, err
			}
			if hi < lo {
				return set, fmt.Errorf("character class %q: reversed range %q-%q", src, lo, hi)
			}
			set.AddRange(lo, hi)
			continue
		}
		set.Add(lo)
	}

	if negate {
		set = set.complement()
	}
	if set.Len() == 0 {
		return set, fmt.Errorf("character class %q matches nothing", src)
	}
	return set, nil
}

// CharClass matches a run of bytes from a set.
type CharClass struct {
	Source string
	Set    ByteSet
	Min    int // at least 1
	Max    int // 0 means unbounded
}

func (c *CharClass) Match(input []byte, atEOF bool) ebnflex.Result {
	var pr ebnflex.Progress
	return c.Resume(&pr, input, atEOF)
}

func (c *CharClass) Resume(pr *ebnflex.Progress, input []byte, atEOF bool) ebnflex.Result {
	n := pr.Pos
	for n < len(input) && (c.Max == 0 || n < c.Max) && c.Set.Contains(input[n]) {
		n++
	}
	if c.Max != 0 && n == c.Max {
		return ebnflex.Result{Status: ebnflex.Accepted, Length: n}
	}
	if n == len(input) && !atEOF {
		pr.Pos = n
		if n >= c.Min {
			return ebnflex.Result{Status: ebnflex.Incomplete, Length: n}
		}
		return ebnflex.Result{Status: ebnflex.Incomplete}
	}
	if n >= c.Min {
		return ebnflex.Result{Status: ebnflex.Accepted, Length: n}
	}
	return ebnflex.Result{Status: ebnflex.Rejected, Truncated: atEOF && n == len(input) && n > 0}
}

func (c *CharClass) String() string {
	return "[" + c.Source + "]"
}
