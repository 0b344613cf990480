package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// MarkdownReporter implements the Reporter interface by saving reports as markdown files.
type MarkdownReporter struct {
	outputDir string
}

// NewMarkdownReporter creates a new MarkdownReporter.
func NewMarkdownReporter(outputDir string) *MarkdownReporter {
	return &MarkdownReporter{
		outputDir: outputDir,
	}
}

// Save writes coverage_<id>_<unixnano>.md.
func (r *MarkdownReporter) Save(ev *Event) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	reportName := fmt.Sprintf("coverage_%06d_%d.md", ev.InputID, time.Now().UnixNano())
	reportPath := filepath.Join(r.outputDir, reportName)

	if err := os.WriteFile(reportPath, []byte(Render(ev)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", reportPath, err)
	}
	return reportPath, nil
}

// Render formats an event as markdown.
func Render(ev *Event) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# New Coverage: input %d\n\n", ev.InputID)
	if ev.Source != "" {
		fmt.Fprintf(&sb, "**Source:** `%s`\n\n", ev.Source)
	}
	if ev.Database != "" {
		fmt.Fprintf(&sb, "**Database:** `%s`\n\n", ev.Database)
	}
	if ev.Backup != "" {
		fmt.Fprintf(&sb, "**Backup:** `%s`\n\n", ev.Backup)
	}

	sb.WriteString("## Feedback Map\n\n")
	fmt.Fprintf(&sb, "- Encoding: %s\n", ev.Options.Mode)
	fmt.Fprintf(&sb, "- Metric: %s\n", ev.Options.Metric)
	fmt.Fprintf(&sb, "- Filter: `%s`\n", ev.Options.Filter)
	fmt.Fprintf(&sb, "- Blocks: %d\n", ev.Totals.Blocks)
	fmt.Fprintf(&sb, "- Covered: %d / %d\n", ev.Totals.Covered, ev.Totals.Coverable)
	fmt.Fprintf(&sb, "- Score: %.2f\n\n", ev.Score)

	if ev.Increase != nil {
		sb.WriteString("## Increase\n\n")
		fmt.Fprintf(&sb, "%s\n\n", ev.Increase.Summary)
	}
	if ev.Stats != nil {
		sb.WriteString("## Accumulated\n\n")
		fmt.Fprintf(&sb, "%.2f%% (%d/%d points, %d active words)\n\n",
			ev.Stats.CoveragePercentage, ev.Stats.CoveredPoints, ev.Stats.TotalPoints, ev.Stats.ActiveWords)
	}

	if len(ev.Instances) > 0 {
		sb.WriteString("## Instances\n\n")
		table := tablewriter.NewWriter(&sb)
		table.SetHeader([]string{"Instance", "Blocks", "Covered", "Coverable", "Score"})
		table.SetAutoFormatHeaders(false)
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
		for _, inst := range ev.Instances {
			table.Append([]string{
				inst.Name,
				fmt.Sprintf("%d", inst.Blocks),
				fmt.Sprintf("%d", inst.Covered),
				fmt.Sprintf("%d", inst.Coverable),
				fmt.Sprintf("%.2f", inst.Score()),
			})
		}
		table.Render()
		sb.WriteString("\n")
	}

	if ev.Simulator != nil {
		sb.WriteString("## Simulator\n\n")
		fmt.Fprintf(&sb, "**Exit Code:** %d (%s)\n\n", ev.Simulator.ExitCode, ev.Simulator.Duration.Round(time.Millisecond))
		if out := strings.TrimSpace(ev.Simulator.Stdout); out != "" {
			fmt.Fprintf(&sb, "**Stdout:**\n\n```\n%s\n```\n\n", out)
		}
		if errOut := strings.TrimSpace(ev.Simulator.Stderr); errOut != "" {
			fmt.Fprintf(&sb, "**Stderr:**\n\n```\n%s\n```\n\n", errOut)
		}
	}

	return sb.String()
}
