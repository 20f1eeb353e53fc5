package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhamidi/streamparse/presets"
)

func newPresetsCmd() *cobra.Command {
	var show string

	cmd := &cobra.Command{
		Use:          "presets",
		Short:        "List the built-in formats",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if show != "" {
				src, err := presets.Source(show)
				if err != nil {
					return err
				}
				_, err = out.Write(src)
				return err
			}

			for _, name := range presets.Names() {
				g, err := presets.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%d tokens\t%d states\n", name, len(g.Matchers()), g.NumStates())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "print the grammar description of a format")

	return cmd
}
