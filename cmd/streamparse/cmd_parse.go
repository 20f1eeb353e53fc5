package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/dhamidi/streamparse/engine"
	"github.com/dhamidi/streamparse/format"
)

func newParseCmd() *cobra.Command {
	var grammarFlags grammarFlags
	var chunkSize int
	var output string
	var colored bool
	var maxBuffer string
	var maxDepth int
	var stats bool

	cmd := &cobra.Command{
		Use:          "parse <file|->",
		Short:        "Parse input and print its events",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if chunkSize < 1 {
				return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
			}
			limit, err := datasize.ParseString(maxBuffer)
			if err != nil {
				return fmt.Errorf("parse --max-buffer: %w", err)
			}

			g, err := grammarFlags.load()
			if err != nil {
				return err
			}

			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			if !cmd.Flags().Changed("color") {
				colored = isatty.IsTerminal(os.Stdout.Fd())
			}
			enc, err := format.New(output, cmd.OutOrStdout(), colored)
			if err != nil {
				return err
			}
			handler := &format.Handler{Encoder: enc}

			registry := prometheus.NewRegistry()
			p, err := engine.New(g,
				engine.WithName(grammarFlags.name(g)),
				engine.WithHandler(handler, nil),
				engine.WithMaxBufferSize(int(limit.Bytes())),
				engine.WithMaxDepth(maxDepth),
				engine.WithMetrics(engine.NewMetrics(registry)),
			)
			if err != nil {
				return err
			}
			defer p.Destroy()

			parseErr := feedAll(p, in, chunkSize)
			if stats {
				if err := printStats(cmd.ErrOrStderr(), registry); err != nil {
					return err
				}
			}
			if err := handler.Err(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return parseErr
		},
	}

	grammarFlags.register(cmd)
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 4096, "bytes read and fed per call")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&colored, "color", false, "colorize text output (default: when stdout is a terminal)")
	cmd.Flags().StringVar(&maxBuffer, "max-buffer", "0", "largest token to hold, complete or not, e.g. 64KB (0 means no limit)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "deepest nesting allowed (0 selects the default)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print parser statistics to stderr")

	return cmd
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// feedAll feeds r to p in chunks of at most size bytes and finishes.
func feedAll(p *engine.Parser, r io.Reader, size int) error {
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := p.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return p.Finish()
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
}

func printStats(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather stats: %w", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	fmt.Fprintf(w, "input:       %s\n", humanize.Bytes(uint64(sum(byName["streamparse_input_bytes_total"], nil))))
	fmt.Fprintf(w, "tokens:      %s (%s skipped)\n",
		humanize.Comma(int64(sum(byName["streamparse_tokens_total"], nil))),
		humanize.Comma(int64(sum(byName["streamparse_tokens_total"], map[string]string{"skipped": "true"}))))
	fmt.Fprintf(w, "events:      %s\n", humanize.Comma(int64(sum(byName["streamparse_events_total"], nil))))
	fmt.Fprintf(w, "errors:      %s\n", humanize.Comma(int64(sum(byName["streamparse_errors_total"], nil))))
	fmt.Fprintf(w, "buffer peak: %s\n", humanize.Bytes(uint64(sum(byName["streamparse_buffer_peak_bytes"], nil))))
	return nil
}

// sum adds the values of the series in f whose labels include match.
func sum(f *dto.MetricFamily, match map[string]string) float64 {
	if f == nil {
		return 0
	}
	var total float64
outer:
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if want, ok := match[l.GetName()]; ok && want != l.GetValue() {
				continue outer
			}
		}
		switch {
		case m.Counter != nil:
			total += m.GetCounter().GetValue()
		case m.Gauge != nil:
			total += m.GetGauge().GetValue()
		}
	}
	return total
}
