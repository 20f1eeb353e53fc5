package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dhamidi/streamparse/format"
	"github.com/dhamidi/streamparse/lexer"
)

func newTokensCmd() *cobra.Command {
	var grammarFlags grammarFlags

	cmd := &cobra.Command{
		Use:          "tokens <file|->",
		Short:        "Print the token stream of input, skipped tokens included",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := grammarFlags.load()
			if err != nil {
				return err
			}

			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			tokens, lexErr := lexer.New(g).Tokenize(data)
			enc := format.NewTokenEncoder(cmd.OutOrStdout(), g)
			for _, tok := range tokens {
				if err := enc.Encode(tok); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			return lexErr
		},
	}

	grammarFlags.register(cmd)

	return cmd
}
