package state

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

const (
	boxTopLeft     = "╔"
	boxTopRight    = "╗"
	boxBottomLeft  = "╚"
	boxBottomRight = "╝"
	boxHorizontal  = "═"
	boxVertical    = "║"
	boxTeeRight    = "╠"
	boxTeeLeft     = "╣"
)

// TerminalUI renders a live dashboard of RunMetrics, redrawing in place.
type TerminalUI struct {
	mu           sync.Mutex
	out          io.Writer
	metrics      *RunMetrics
	width        int
	lastRender   time.Time
	renderLines  int // Number of lines rendered (for clearing)
	enabled      bool
	color        bool
	minRenderGap time.Duration
}

// NewTerminalUI creates a dashboard on stderr.
func NewTerminalUI() *TerminalUI {
	return &TerminalUI{
		out:          os.Stderr,
		width:        60,
		enabled:      true,
		color:        true,
		minRenderGap: 100 * time.Millisecond,
	}
}

// SetOutput redirects rendering, disabling colours for non-terminal writers.
func (t *TerminalUI) SetOutput(w io.Writer, color bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = w
	t.color = color
}

// SetMetrics sets the metrics to display.
func (t *TerminalUI) SetMetrics(m *RunMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// SetEnabled enables or disables the UI.
func (t *TerminalUI) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Render draws the current state to the terminal.
func (t *TerminalUI) Render() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled || t.metrics == nil {
		return
	}

	// Rate limit rendering
	if time.Since(t.lastRender) < t.minRenderGap {
		return
	}
	t.lastRender = time.Now()

	// Build the display
	output := t.buildDisplay()

	// Count lines in output
	newRenderLines := strings.Count(output, "\n")

	// Move cursor up to overwrite previous render
	if t.renderLines > 0 {
		// Clear each line as we go up
		for i := 0; i < t.renderLines; i++ {
			fmt.Fprint(t.out, "\033[A\033[2K") // Move up and clear line
		}
	}

	// Print the output
	fmt.Fprint(t.out, output)

	// Update line count for next render
	t.renderLines = newRenderLines
}

// Clear clears the UI from the terminal.
func (t *TerminalUI) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.renderLines > 0 {
		// Move cursor up and clear each line
		for i := 0; i < t.renderLines; i++ {
			fmt.Fprint(t.out, "\033[A\033[K")
		}
		t.renderLines = 0
	}
}

// buildDisplay constructs the display string.
func (t *TerminalUI) buildDisplay() string {
	m := t.metrics
	var sb strings.Builder

	width := t.width

	// Title bar
	sb.WriteString(t.colorize(boxTopLeft, colorCyan))
	sb.WriteString(t.colorize(strings.Repeat(boxHorizontal, width-2), colorCyan))
	sb.WriteString(t.colorize(boxTopRight, colorCyan))
	sb.WriteString("\n")

	// Title
	title := " COVFEED - Coverage Feedback "
	padding := (width - 2 - len(title)) / 2
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(strings.Repeat(" ", padding))
	sb.WriteString(t.colorize(title, colorBold+colorYellow))
	sb.WriteString(strings.Repeat(" ", width-2-padding-len(title)))
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	t.separator(&sb, width)

	// Runtime
	runtime := formatDuration(m.ElapsedSeconds)
	sb.WriteString(t.formatRow(width, "Runtime", runtime, colorWhite))

	// Inputs section
	sb.WriteString(t.formatRow(width, "Inputs Processed", fmt.Sprintf("%d", m.InputsRun), colorWhite))
	sb.WriteString(t.formatRow(width, "Coverage Increase", fmt.Sprintf("%d (%.1f%%)", m.CoverageIncrInput, safePercent(m.CoverageIncrInput, m.InputsRun)), colorGreen))
	sb.WriteString(t.formatRow(width, "Sim Failures", fmt.Sprintf("%d", m.SimulatorFailures), colorYellow))
	sb.WriteString(t.formatRow(width, "Timeouts", fmt.Sprintf("%d", m.Timeouts), colorYellow))
	sb.WriteString(t.formatRow(width, "Encode Failures", fmt.Sprintf("%d", m.EncodeFailures), colorRed))

	t.separator(&sb, width)

	// Coverage progress bar
	sb.WriteString(t.formatCoverageBar(width, m))
	sb.WriteString(t.formatRow(width, "Best Score", fmt.Sprintf("%.2f", m.BestScore), colorGreen))

	t.separator(&sb, width)

	// Performance
	sb.WriteString(t.formatRow(width, "Speed", fmt.Sprintf("%.2f inputs/sec", m.InputsPerSecond), colorWhite))
	sb.WriteString(t.formatRow(width, "Avg Time/Input", fmt.Sprintf("%.1f ms", m.AvgInputTimeMs), colorWhite))

	// Bottom border
	sb.WriteString(t.colorize(boxBottomLeft, colorCyan))
	sb.WriteString(t.colorize(strings.Repeat(boxHorizontal, width-2), colorCyan))
	sb.WriteString(t.colorize(boxBottomRight, colorCyan))
	sb.WriteString("\n")

	return sb.String()
}

func (t *TerminalUI) separator(sb *strings.Builder, width int) {
	sb.WriteString(t.colorize(boxTeeRight, colorCyan))
	sb.WriteString(t.colorize(strings.Repeat(boxHorizontal, width-2), colorCyan))
	sb.WriteString(t.colorize(boxTeeLeft, colorCyan))
	sb.WriteString("\n")
}

// formatRow formats a single row with label and value.
func (t *TerminalUI) formatRow(width int, label, value string, valueColor string) string {
	var sb strings.Builder

	// Left border
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")

	// Label (left aligned)
	labelWidth := 18
	sb.WriteString(t.colorize(label, colorDim))
	sb.WriteString(strings.Repeat(" ", labelWidth-len(label)))

	// Value (right aligned)
	valueWidth := width - labelWidth - 4
	padding := valueWidth - len(value)
	if padding > 0 {
		sb.WriteString(strings.Repeat(" ", padding))
	}
	sb.WriteString(t.colorize(value, valueColor))

	// Right border
	sb.WriteString(" ")
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	return sb.String()
}

// formatCoverageBar formats a coverage progress bar.
func (t *TerminalUI) formatCoverageBar(width int, m *RunMetrics) string {
	var sb strings.Builder

	// Label row
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")

	coverageLabel := fmt.Sprintf("Coverage: %.2f%% (%d/%d points)", m.CurrentCoverage, m.CoveredPoints, m.TotalPoints)
	sb.WriteString(t.colorize(coverageLabel, colorWhite))
	if pad := width - 3 - len(coverageLabel); pad > 0 {
		sb.WriteString(strings.Repeat(" ", pad))
	}
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	// Progress bar row
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")

	barWidth := width - 6
	filledWidth := 0
	if m.TotalPoints > 0 {
		filledWidth = int(float64(barWidth) * float64(m.CoveredPoints) / float64(m.TotalPoints))
	}
	if filledWidth > barWidth {
		filledWidth = barWidth
	}
	emptyWidth := barWidth - filledWidth

	// Build the bar
	sb.WriteString("[")
	if filledWidth > 0 {
		sb.WriteString(t.colorize(strings.Repeat("█", filledWidth), colorGreen))
	}
	if emptyWidth > 0 {
		sb.WriteString(t.colorize(strings.Repeat("░", emptyWidth), colorDim))
	}
	sb.WriteString("]")

	sb.WriteString(" ")
	sb.WriteString(t.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	return sb.String()
}

// colorize wraps text with ANSI color codes.
func (t *TerminalUI) colorize(text, color string) string {
	if !t.color {
		return text
	}
	return color + text + colorReset
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
