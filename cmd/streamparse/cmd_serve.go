package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/dhamidi/streamparse/presets"
	"github.com/dhamidi/streamparse/ui"
)

func newServeCmd() *cobra.Command {
	var addr string
	var maxBody string
	var maxBuffer string
	var cacheSize int

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the parse API, a try-it page and metrics over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bodyLimit, err := datasize.ParseString(maxBody)
			if err != nil {
				return fmt.Errorf("parse --max-body: %w", err)
			}
			bufferLimit, err := datasize.ParseString(maxBuffer)
			if err != nil {
				return fmt.Errorf("parse --max-buffer: %w", err)
			}
			cache, err := presets.NewCache(cacheSize)
			if err != nil {
				return err
			}

			server, err := ui.NewServer(cache,
				ui.WithMaxBodySize(int64(bodyLimit.Bytes())),
				ui.WithMaxBufferSize(int(bufferLimit.Bytes())),
			)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			displayAddr := addr
			if strings.HasPrefix(addr, ":") {
				displayAddr = "localhost" + addr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Starting server at http://%s\n", displayAddr)
			return http.ListenAndServe(addr, server)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "address to listen on")
	cmd.Flags().StringVar(&maxBody, "max-body", "0", "largest request body accepted, e.g. 10MB (0 means no limit)")
	cmd.Flags().StringVar(&maxBuffer, "max-buffer", "1MB", "largest token, complete or not, a parser may hold")
	cmd.Flags().IntVar(&cacheSize, "cache-size", presets.DefaultCacheSize, "number of built grammars to keep")

	return cmd
}
