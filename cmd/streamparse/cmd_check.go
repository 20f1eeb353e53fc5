package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhamidi/streamparse/failure"
	"github.com/dhamidi/streamparse/grammar"
)

func newCheckCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:           "check <grammar-file>",
		Short:         "Validate a grammar description and summarize it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			desc, err := grammar.LoadDescription(args[0])
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return err
			}
			g, err := grammar.Build(desc)
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return err
			}

			fmt.Fprintf(out, "%s %016x\n", g.Name(), g.Fingerprint())
			if !quiet {
				summarize(out, g)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the name and fingerprint")

	return cmd
}

// printErrors prints a build failure as its message followed by one line
// per problem.
func printErrors(w io.Writer, err error) {
	e, ok := failure.As(err)
	if !ok || e.Err == nil {
		fmt.Fprintln(w, err)
		return
	}
	joined, ok := e.Err.(interface{ Unwrap() []error })
	if !ok {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintf(w, "%s:\n", e.Message)
	for _, p := range joined.Unwrap() {
		fmt.Fprintf(w, "  %s\n", p)
	}
}

func summarize(w io.Writer, g *grammar.Grammar) {
	fmt.Fprintln(w, "\ntokens (match order):")
	for _, m := range g.MatchOrder() {
		skip := ""
		if g.IsSkip(m.ID) {
			skip = " skip"
		}
		fmt.Fprintf(w, "  %-16s %-8s %3d  %s%s\n", m.Name, m.Kind, m.Priority, m.Recognizer, skip)
	}

	fmt.Fprintln(w, "\nstates:")
	for id := 0; id < g.NumStates(); id++ {
		st := g.State(grammar.StateID(id))
		var marks []string
		if st.ID == g.Initial() {
			marks = append(marks, "initial")
		}
		if g.IsAccepting(st.ID) {
			marks = append(marks, "accept")
		}
		label := st.Name
		if len(marks) > 0 {
			label += " (" + strings.Join(marks, ", ") + ")"
		}
		fmt.Fprintf(w, "  %s\n", label)

		tokens := make([]grammar.TokenTypeID, 0, len(st.Transitions))
		for t := range st.Transitions {
			tokens = append(tokens, t)
		}
		sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
		for _, t := range tokens {
			fmt.Fprintf(w, "    %-16s %s\n", g.TokenName(t), describeTransition(g, st.Transitions[t]))
		}
	}
}

func describeTransition(g *grammar.Grammar, tr *grammar.Transition) string {
	var sb strings.Builder
	switch {
	case tr.Pop:
		sb.WriteString("-> pop")
	case tr.Push:
		fmt.Fprintf(&sb, "-> %s (push %s)", g.StateName(tr.Next), g.StateName(tr.Return))
	default:
		fmt.Fprintf(&sb, "-> %s", g.StateName(tr.Next))
	}
	for _, ev := range tr.Emit {
		fmt.Fprintf(&sb, " %s", ev.Kind)
	}
	return sb.String()
}
