package state

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleMetrics() *RunMetrics {
	return &RunMetrics{
		StartTime:         time.Now().Add(-time.Hour),
		ElapsedSeconds:    3600,
		InputsRun:         150,
		CoverageIncrInput: 30,
		SimulatorFailures: 5,
		Timeouts:          2,
		EncodeFailures:    1,
		CurrentCoverage:   45.6,
		BestScore:         47.5,
		CoveredPoints:     456,
		TotalPoints:       1000,
		InputsPerSecond:   0.042,
		AvgInputTimeMs:    24000,
	}
}

func TestTerminalUI_buildDisplay(t *testing.T) {
	ui := NewTerminalUI()
	ui.SetOutput(&bytes.Buffer{}, false)
	ui.SetMetrics(sampleMetrics())

	out := ui.buildDisplay()
	for _, want := range []string{
		"COVFEED",
		"Inputs Processed",
		"150",
		"30 (20.0%)",
		"Coverage: 45.60% (456/1000 points)",
		"47.50",
		"0.04 inputs/sec",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\033[", "colours disabled")
}

func TestTerminalUI_Render(t *testing.T) {
	var buf bytes.Buffer
	ui := NewTerminalUI()
	ui.SetOutput(&buf, true)

	ui.Render()
	assert.Empty(t, buf.String(), "nothing to render without metrics")

	ui.SetMetrics(sampleMetrics())
	ui.Render()
	assert.Contains(t, buf.String(), "COVFEED")
	lines := strings.Count(buf.String(), "\n")

	buf.Reset()
	ui.Clear()
	assert.Equal(t, lines, strings.Count(buf.String(), "\033[A"))

	ui.SetEnabled(false)
	buf.Reset()
	ui.Render()
	assert.Empty(t, buf.String())
}

func TestTerminalUI_CoverageBarBounds(t *testing.T) {
	ui := NewTerminalUI()
	ui.SetOutput(&bytes.Buffer{}, false)
	m := sampleMetrics()
	m.CoveredPoints = 2000
	m.TotalPoints = 1000

	bar := ui.formatCoverageBar(ui.width, m)
	assert.NotContains(t, bar, "░")
}
