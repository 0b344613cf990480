package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covfeed/internal/coverage"
)

// NewRandomizeCommand creates the "randomize" subcommand.
func NewRandomizeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "randomize <file>",
		Short: "Randomize a byte range of a feedback map file in place.",
		Long: `Pick a random range of the file and overwrite about one in five of its
bytes with random values, the way the fallback feedback source does when no
coverage database is available. Bytes outside the range are not touched.

Examples:
  covfeed randomize cov.map --seed 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			path := args[0]
			buf, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			start, end := coverage.NewRandomizer(randomSeed(cfg)).Randomize(buf)
			if err := os.WriteFile(path, buf, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "randomized bytes [%d, %d) of %s\n", start, end, path)
			return nil
		},
	}
}
