package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covfeed/internal/config"
	"github.com/zjy-dev/covfeed/internal/coverage"
)

// prepare loads and validates the configuration and opens the source.
func prepare(cmd *cobra.Command, opts *globalOptions) (*config.Config, coverage.Source, func(), error) {
	cfg, err := opts.load(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	source, release, err := openSource(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, source, release, nil
}

// NewSizeCommand creates the "size" subcommand.
func NewSizeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the feedback map capacity of a coverage database.",
		Long: `Walk the filtered instance hierarchy and print how many 32-bit words the
feedback map needs, including the two header words.

Examples:
  covfeed size --db sim/Coverage.vdb --metric line --filter tb.dut
  covfeed size --db sim/Coverage.vdb --encoding tally`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, release, err := prepare(cmd, opts)
			if err != nil {
				return err
			}
			defer release()

			covOpts, err := cfg.Coverage.Options()
			if err != nil {
				return err
			}
			sizing, err := source.Size(covOpts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "words:     %d\n", sizing.Words(covOpts.Mode))
			fmt.Fprintf(out, "blocks:    %d\n", sizing.Blocks)
			fmt.Fprintf(out, "coverable: %d\n", sizing.Coverable)
			return nil
		},
	}
}

// NewFillCommand creates the "fill" subcommand.
func NewFillCommand(opts *globalOptions) *cobra.Command {
	var (
		output string
		words  int
	)

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Encode a coverage database into a feedback map.",
		Long: `Size, allocate and fill the feedback map. The map is written to --out as
little-endian 32-bit words, or printed as hex words when --out is not given.

With --words the map is filled into a buffer of exactly that many words;
a buffer smaller than the sized capacity is an error.

Examples:
  covfeed fill --db sim/Coverage.vdb --out cov.map
  covfeed fill --driver random --map-size 64 --seed 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, release, err := prepare(cmd, opts)
			if err != nil {
				return err
			}
			defer release()

			covOpts, err := cfg.Coverage.Options()
			if err != nil {
				return err
			}
			enc := coverage.NewEncoder(source, covOpts)

			var res *coverage.Result
			if words > 0 {
				res, err = enc.EncodeInto(make([]uint32, words))
			} else {
				res, err = enc.Encode()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				if err := os.WriteFile(output, res.Bytes(), 0644); err != nil {
					return fmt.Errorf("failed to write map %s: %w", output, err)
				}
				fmt.Fprintf(out, "wrote %d words to %s\n", len(res.Words), output)
			} else {
				printWords(out, res.Words)
			}
			fmt.Fprintf(out, "covered %d / coverable %d over %d blocks, score %.2f\n",
				res.Totals.Covered, res.Totals.Coverable, res.Totals.Blocks, res.Score)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "", "Write the map to this file")
	cmd.Flags().IntVar(&words, "words", 0, "Fill a buffer of this many words (0 = sized)")
	return cmd
}

// printWords prints eight hex words per line.
func printWords(w io.Writer, words []uint32) {
	for i, word := range words {
		sep := " "
		if i%8 == 7 || i == len(words)-1 {
			sep = "\n"
		}
		fmt.Fprintf(w, "%08x%s", word, sep)
	}
}

// NewScoreCommand creates the "score" subcommand.
func NewScoreCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Print the coverage percentage of the filtered hierarchy.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, release, err := prepare(cmd, opts)
			if err != nil {
				return err
			}
			defer release()

			covOpts, err := cfg.Coverage.Options()
			if err != nil {
				return err
			}
			res, err := coverage.NewEncoder(source, covOpts).Encode()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", res.Score)
			return nil
		},
	}
}
