package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhamidi/streamparse/grammar"
	"github.com/dhamidi/streamparse/lsp"
)

func newLSPCmd() *cobra.Command {
	var grammarFlags grammarFlags
	var watch bool

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start a language server that reports parse errors of open documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch && grammarFlags.file == "" {
				return fmt.Errorf("--watch needs --grammar")
			}

			server := lsp.NewServer(version, func() (*grammar.Grammar, error) {
				return grammarFlags.load()
			})

			if watch {
				w, err := lsp.NewWatcher(grammarFlags.file, server.Reload)
				if err != nil {
					return err
				}
				w.Start()
				defer w.Stop()
			}

			return server.RunStdio()
		},
	}

	grammarFlags.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload the grammar file when it changes")

	return cmd
}
