package ebnflex

// Status is the outcome of matching a pattern at the start of some input.
type Status int

const (
	// Rejected means the pattern does not match a non-empty prefix.
	Rejected Status = iota
	// Accepted means the longest match is known and complete.
	Accepted
	// Incomplete means the input ended while the pattern could still
	// extend; Length holds the longest match seen so far, possibly 0.
	Incomplete
)

func (s Status) String() string {
	switch s {
	case Rejected:
		return "rejected"
	case Accepted:
		return "accepted"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Result describes a match attempt.
type Result struct {
	Status Status
	Length int
	// Truncated is set on a Rejected result when atEOF was true and the
	// automaton was still running at the end of input.
	Truncated bool
}

// Progress carries a match attempt across calls on growing input. The zero
// value starts at the beginning of the input.
type Progress struct {
	// Pos is the number of input bytes already examined.
	Pos int
	// Best is the longest match within those bytes.
	Best int

	started bool
	states  []int
}

// Reset forgets the attempt, keeping allocated memory.
func (pr *Progress) Reset() {
	pr.Pos, pr.Best = 0, 0
	pr.started = false
	pr.states = pr.states[:0]
}

// Match runs the pattern against the start of input and reports the longest
// non-empty match. When atEOF is false and the input ends while the pattern
// could still consume more bytes, the result is Incomplete.
func (p *Pattern) Match(input []byte, atEOF bool) Result {
	var pr Progress
	return p.Resume(&pr, input, atEOF)
}

// Resume continues the attempt recorded in pr. input must extend the input
// of the previous call, which returned Incomplete, and only bytes past
// pr.Pos are examined.
func (p *Pattern) Resume(pr *Progress, input []byte, atEOF bool) Result {
	if !pr.started {
		pr.states = append(pr.states[:0], p.closure[p.start]...)
		pr.Pos, pr.Best = 0, 0
		pr.started = true
	}
	cur := pr.states
	var next []int
	mark := make([]int, len(p.states))
	for i := range mark {
		mark[i] = -1
	}

	best := pr.Best
	for i := pr.Pos; len(cur) > 0; i++ {
		if i == len(input) {
			if !atEOF {
				pr.Pos, pr.Best, pr.states = i, best, cur
				return Result{Status: Incomplete, Length: best}
			}
			if best > 0 {
				return Result{Status: Accepted, Length: best}
			}
			return Result{Status: Rejected, Truncated: true}
		}

		b := input[i]
		next = next[:0]
		accepted := false
		for _, s := range cur {
			st := &p.states[s]
			if b < st.lo || b > st.hi {
				continue
			}
			if p.accepts[st.next] {
				accepted = true
			}
			for _, t := range p.closure[st.next] {
				if mark[t] != i {
					mark[t] = i
					next = append(next, t)
				}
			}
		}
		if accepted {
			best = i + 1
		}
		cur, next = next, cur
	}

	if best > 0 {
		return Result{Status: Accepted, Length: best}
	}
	return Result{Status: Rejected}
}
