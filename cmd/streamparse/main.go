package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"github.com/dhamidi/streamparse/grammar"
	"github.com/dhamidi/streamparse/presets"
)

const version = "0.1.0"

func main() {
	var verbosity int

	rootCmd := &cobra.Command{
		Use:     "streamparse",
		Short:   "Grammar-driven streaming parser",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			commonlog.Configure(verbosity, nil)
		},
	}
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "log more (repeat for debug output)")

	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newTokensCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newLSPCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// grammarFlags selects a grammar by file or by preset name.
type grammarFlags struct {
	file   string
	format string
}

func (f *grammarFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "grammar", "g", "", "grammar description file (.yaml or .json)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "built-in format (see 'streamparse presets')")
	cmd.MarkFlagsMutuallyExclusive("grammar", "format")
	cmd.MarkFlagsOneRequired("grammar", "format")
}

func (f *grammarFlags) load() (*grammar.Grammar, error) {
	g, err := presets.Resolve(f.file, f.format)
	if err != nil {
		return nil, fmt.Errorf("load grammar: %w", err)
	}
	return g, nil
}

// name is what the parser's log output is scoped to.
func (f *grammarFlags) name(g *grammar.Grammar) string {
	if f.format != "" {
		return f.format
	}
	return g.Name()
}
