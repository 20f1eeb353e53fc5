package grammar

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/streamparse/ebnflex"
	"github.com/dhamidi/streamparse/failure"
)

var log = commonlog.GetLogger("streamparse.grammar")

type builder struct {
	desc     *Description
	problems []error
	tokens   map[string]TokenTypeID
	states   map[string]StateID
	g        *Grammar
}

func (b *builder) problem(format string, args ...any) {
	b.problems = append(b.problems, fmt.Errorf(format, args...))
}

// Build validates desc and constructs a Grammar. Every problem found is
// reported; the returned error is a *failure.Error of kind
// KindConfiguration wrapping all of them.
func Build(desc *Description) (*Grammar, error) {
	if desc == nil {
		return nil, failure.New(failure.KindConfiguration, failure.NoOffset, "nil grammar description")
	}

	b := &builder{
		desc:   desc,
		tokens: make(map[string]TokenTypeID),
		states: make(map[string]StateID),
		g:      &Grammar{name: desc.Name},
	}
	b.buildMatchers()
	b.buildSkip()
	b.declareStates()
	b.buildStates()
	b.buildInitialAndAccept()

	if len(b.problems) > 0 {
		err := failure.Wrap(failure.KindConfiguration, failure.NoOffset, errors.Join(b.problems...), "invalid grammar %q", desc.Name)
		log.Debugf("%s", err)
		return nil, err
	}

	b.g.fingerprint = fingerprint(desc)
	log.Debugf("built grammar %s", b.g)
	return b.g, nil
}

// MustBuild is like Build but panics on error. It is meant for grammars
// compiled into a program.
func MustBuild(desc *Description) *Grammar {
	g, err := Build(desc)
	if err != nil {
		panic(err)
	}
	return g
}

func fingerprint(desc *Description) uint64 {
	data, err := json.Marshal(desc)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

func (b *builder) buildMatchers() {
	if len(b.desc.TokenMatchers) == 0 {
		b.problem("grammar declares no token matchers")
		return
	}

	prods, err := ebnflex.ParseProductions(b.desc.Name+".productions", b.desc.Productions)
	if err != nil {
		b.problem("%w", err)
	}

	for i, md := range b.desc.TokenMatchers {
		if md.Name == "" {
			b.problem("token matcher #%d has no name", i)
			continue
		}
		if md.Name == EOFName {
			b.problem("token matcher name %q is reserved for the end of input", md.Name)
			continue
		}
		if _, dup := b.tokens[md.Name]; dup {
			b.problem("token matcher %q declared twice", md.Name)
			continue
		}
		id := TokenTypeID(len(b.g.matchers))
		b.tokens[md.Name] = id

		m := &Matcher{ID: id, Name: md.Name, Priority: md.Priority}
		b.g.matchers = append(b.g.matchers, m)

		set := 0
		if md.Literal != nil {
			set++
		}
		if md.Class != "" {
			set++
		}
		if md.Pattern != "" {
			set++
		}
		if set != 1 {
			b.problem("token matcher %q must set exactly one of literal, class, pattern", md.Name)
			continue
		}

		switch {
		case md.Literal != nil:
			if *md.Literal == "" {
				b.problem("token matcher %q: empty literal", md.Name)
				continue
			}
			m.Kind = KindLiteral
			m.Recognizer = Literal(*md.Literal)

		case md.Class != "":
			byteSet, err := ParseByteSet(md.Class)
			if err != nil {
				b.problem("token matcher %q: %w", md.Name, err)
				continue
			}
			cc := &CharClass{Source: md.Class, Set: byteSet, Min: md.Min, Max: md.Max}
			if cc.Min == 0 {
				cc.Min = 1
			}
			if cc.Min < 0 || cc.Max < 0 || (cc.Max != 0 && cc.Max < cc.Min) {
				b.problem("token matcher %q: invalid repeat bounds min=%d max=%d", md.Name, md.Min, md.Max)
				continue
			}
			m.Kind = KindCharClass
			m.Recognizer = cc

		case md.Pattern != "":
			if prods == nil {
				continue
			}
			p, err := ebnflex.Compile(md.Pattern, prods)
			if err != nil {
				b.problem("token matcher %q: %w", md.Name, err)
				continue
			}
			m.Kind = KindPattern
			m.Recognizer = Pattern{p}
		}
	}

	b.g.byPriority = append([]*Matcher(nil), b.g.matchers...)
	sort.SliceStable(b.g.byPriority, func(i, j int) bool {
		return b.g.byPriority[i].Priority > b.g.byPriority[j].Priority
	})
}

func (b *builder) buildSkip() {
	b.g.skip = make([]bool, len(b.g.matchers))
	for _, name := range b.desc.SkipTypes {
		id, ok := b.tokens[name]
		if !ok {
			b.problem("skip type %q is not a declared token", name)
			continue
		}
		b.g.skip[id] = true
	}
}

func (b *builder) declareStates() {
	if len(b.desc.States) == 0 {
		b.problem("grammar declares no states")
		return
	}
	for i, sd := range b.desc.States {
		if sd.Name == "" {
			b.problem("state #%d has no name", i)
			continue
		}
		if _, dup := b.states[sd.Name]; dup {
			b.problem("state %q declared twice", sd.Name)
			continue
		}
		id := StateID(len(b.g.states))
		b.states[sd.Name] = id
		b.g.states = append(b.g.states, &State{
			ID:          id,
			Name:        sd.Name,
			Transitions: make(map[TokenTypeID]*Transition),
		})
	}
}

func (b *builder) buildStates() {
	done := make(map[StateID]bool)
	for _, sd := range b.desc.States {
		id, ok := b.states[sd.Name]
		if !ok || done[id] {
			continue
		}
		done[id] = true
		st := b.g.states[id]

		var allowed map[TokenTypeID]bool
		if len(sd.Allowed) > 0 {
			allowed = make(map[TokenTypeID]bool)
			for _, name := range sd.Allowed {
				t, ok := b.token(name)
				if !ok {
					b.problem("state %q allows undeclared token %q", sd.Name, name)
					continue
				}
				allowed[t] = true
			}
		}

		for _, td := range sd.Transitions {
			t, ok := b.token(td.Token)
			if !ok {
				b.problem("state %q: transition on undeclared token %q", sd.Name, td.Token)
				continue
			}
			if b.g.IsSkip(t) {
				b.problem("state %q: transition on skip token %q", sd.Name, td.Token)
				continue
			}
			if _, dup := st.Transitions[t]; dup {
				b.problem("state %q: token %q has more than one transition", sd.Name, td.Token)
				continue
			}
			if allowed != nil && !allowed[t] {
				b.problem("state %q: transition on token %q which is not allowed", sd.Name, td.Token)
				continue
			}
			tr, ok := b.buildTransition(sd.Name, td)
			if !ok {
				continue
			}
			st.Transitions[t] = tr
		}

		for t := range allowed {
			if _, ok := st.Transitions[t]; !ok {
				b.problem("state %q allows token %q without a transition", sd.Name, b.g.TokenName(t))
			}
		}
	}
}

func (b *builder) token(name string) (TokenTypeID, bool) {
	if name == EOFName {
		return EOF, true
	}
	t, ok := b.tokens[name]
	return t, ok
}

func (b *builder) buildTransition(state string, td TransitionDesc) (*Transition, bool) {
	tr := &Transition{Pop: td.Pop}
	ok := true

	if td.Token == EOFName && td.Push != "" {
		b.problem("state %q: the EOF transition cannot push", state)
		ok = false
	}

	switch {
	case td.Pop && (td.Next != "" || td.Push != ""):
		b.problem("state %q, token %q: pop cannot be combined with next or push", state, td.Token)
		ok = false
	case !td.Pop && td.Next == "":
		b.problem("state %q, token %q: transition needs next or pop", state, td.Token)
		ok = false
	}

	if td.Next != "" {
		next, found := b.states[td.Next]
		if !found {
			b.problem("state %q, token %q: next state %q does not exist", state, td.Token, td.Next)
			ok = false
		}
		tr.Next = next
	}
	if td.Push != "" {
		ret, found := b.states[td.Push]
		if !found {
			b.problem("state %q, token %q: push state %q does not exist", state, td.Token, td.Push)
			ok = false
		}
		tr.Push = true
		tr.Return = ret
	}

	for _, ed := range td.Emit {
		spec, err := buildEventSpec(ed)
		if err != nil {
			b.problem("state %q, token %q: %w", state, td.Token, err)
			ok = false
			continue
		}
		tr.Emit = append(tr.Emit, spec)
	}
	return tr, ok
}

func buildEventSpec(ed EventDesc) (EventSpec, error) {
	kind, err := ParseEventKind(ed.Kind)
	if err != nil {
		return EventSpec{}, err
	}
	if kind == Error {
		return EventSpec{}, fmt.Errorf("error events are reserved for parse failures")
	}

	spec := EventSpec{Kind: kind}
	if kind == Value {
		spec.Source = DataToken
	}
	switch ed.Data {
	case "":
	case "token":
		spec.Source = DataToken
	case "none":
		spec.Source = DataNone
	case "inner":
		spec.Source = DataInner
	default:
		return EventSpec{}, fmt.Errorf("unknown event data source %q", ed.Data)
	}
	if ed.Literal != nil {
		spec.Source = DataLiteral
		spec.Literal = []byte(*ed.Literal)
	}
	return spec, nil
}

func (b *builder) buildInitialAndAccept() {
	if len(b.g.states) == 0 {
		return
	}
	if b.desc.InitialState == "" {
		b.problem("grammar has no initial state")
	} else if id, ok := b.states[b.desc.InitialState]; ok {
		b.g.initial = id
	} else {
		b.problem("initial state %q does not exist", b.desc.InitialState)
	}

	b.g.accept = make([]bool, len(b.g.states))
	if len(b.desc.AcceptStates) == 0 {
		b.g.accept[b.g.initial] = true
		for _, st := range b.g.states {
			if st.Terminal() {
				b.g.accept[st.ID] = true
			}
		}
		return
	}
	for _, name := range b.desc.AcceptStates {
		id, ok := b.states[name]
		if !ok {
			b.problem("accept state %q does not exist", name)
			continue
		}
		b.g.accept[id] = true
	}
}
