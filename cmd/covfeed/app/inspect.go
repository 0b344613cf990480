package app

import (
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/zjy-dev/covfeed/internal/coverage"
)

// NewInspectCommand creates the "inspect" subcommand.
func NewInspectCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show per-instance coverage of the filtered hierarchy.",
		Long: `Merge the test records of a coverage database and print a table with the
blocks, covered and coverable points and score of every matched instance.

Examples:
  covfeed inspect --db sim/Coverage.vdb --filter tb.dut --metric toggle`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, release, err := prepare(cmd, opts)
			if err != nil {
				return err
			}
			defer release()

			ss, ok := source.(*coverage.SessionSource)
			if !ok {
				return errors.New("inspect needs a coverage database, not the random driver")
			}
			covOpts, err := cfg.Coverage.Options()
			if err != nil {
				return err
			}
			rows, err := ss.Breakdown(covOpts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "no %s coverage under %q\n", covOpts.Metric, covOpts.Filter)
				return nil
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Instance", "Blocks", "Covered", "Coverable", "Score"})
			table.SetBorder(false)
			table.SetCenterSeparator("")
			table.SetColumnAlignment([]int{
				tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
				tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
			})

			var total coverage.InstanceCoverage
			for _, r := range rows {
				table.Append([]string{
					r.Name,
					fmt.Sprintf("%d", r.Blocks),
					fmt.Sprintf("%d", r.Covered),
					fmt.Sprintf("%d", r.Coverable),
					fmt.Sprintf("%.2f", r.Score()),
				})
				total.Blocks += r.Blocks
				total.Covered += r.Covered
				total.Coverable += r.Coverable
			}
			table.SetFooter([]string{
				"Total",
				fmt.Sprintf("%d", total.Blocks),
				fmt.Sprintf("%d", total.Covered),
				fmt.Sprintf("%d", total.Coverable),
				fmt.Sprintf("%.2f", total.Score()),
			})
			table.Render()
			return nil
		},
	}
}
