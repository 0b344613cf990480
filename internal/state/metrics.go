package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MetricsFileName is the name of the metrics file.
const MetricsFileName = "metrics.json"

// RunMetrics are the live counters of a feedback run.
type RunMetrics struct {
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`

	InputsRun         int `json:"inputs_run"`
	CoverageIncrInput int `json:"coverage_incr_inputs"`
	SimulatorFailures int `json:"simulator_failures"`
	Timeouts          int `json:"timeouts"`
	EncodeFailures    int `json:"encode_failures"`

	CurrentCoverage float64 `json:"current_coverage"`
	BestScore       float64 `json:"best_score"`
	CoveredPoints   int     `json:"covered_points"`
	TotalPoints     int     `json:"total_points"`

	InputsPerSecond float64 `json:"inputs_per_second"`
	AvgInputTimeMs  float64 `json:"avg_input_time_ms"`
}

// FileMetricsManager keeps RunMetrics and persists them as JSON.
type FileMetricsManager struct {
	mu        sync.Mutex
	filePath  string
	metrics   RunMetrics
	totalTime time.Duration
}

// NewFileMetricsManager creates a metrics manager writing to dir/metrics.json.
func NewFileMetricsManager(dir string) *FileMetricsManager {
	now := time.Now()
	return &FileMetricsManager{
		filePath: filepath.Join(dir, MetricsFileName),
		metrics:  RunMetrics{StartTime: now, LastUpdateTime: now},
	}
}

func (m *FileMetricsManager) touch() {
	now := time.Now()
	m.metrics.LastUpdateTime = now
	m.metrics.ElapsedSeconds = now.Sub(m.metrics.StartTime).Seconds()
	if m.metrics.ElapsedSeconds > 0 {
		m.metrics.InputsPerSecond = float64(m.metrics.InputsRun) / m.metrics.ElapsedSeconds
	}
	if m.metrics.InputsRun > 0 {
		m.metrics.AvgInputTimeMs = float64(m.totalTime.Milliseconds()) / float64(m.metrics.InputsRun)
	}
}

// RecordInputProcessed counts one replayed input that took d.
func (m *FileMetricsManager) RecordInputProcessed(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.InputsRun++
	m.totalTime += d
	m.touch()
}

// RecordCoverageIncrease counts an input that produced new coverage.
func (m *FileMetricsManager) RecordCoverageIncrease() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.CoverageIncrInput++
	m.touch()
}

// RecordSimulatorFailure counts a simulator run that failed to start or
// exited non-zero.
func (m *FileMetricsManager) RecordSimulatorFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.SimulatorFailures++
	m.touch()
}

// RecordTimeout counts a simulator run that was killed.
func (m *FileMetricsManager) RecordTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.Timeouts++
	m.touch()
}

// RecordEncodeFailure counts a failed coverage extraction.
func (m *FileMetricsManager) RecordEncodeFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.EncodeFailures++
	m.touch()
}

// UpdateCoverageStats records the accumulated coverage.
func (m *FileMetricsManager) UpdateCoverageStats(pct, best float64, covered, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.CurrentCoverage = pct
	m.metrics.BestScore = best
	m.metrics.CoveredPoints = covered
	m.metrics.TotalPoints = total
	m.touch()
}

// GetMetrics returns a snapshot of the metrics.
func (m *FileMetricsManager) GetMetrics() *RunMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	snapshot := m.metrics
	return &snapshot
}

// Save writes the metrics to disk.
func (m *FileMetricsManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	data, err := json.MarshalIndent(m.metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file %s: %w", m.filePath, err)
	}
	return nil
}

// Load reads metrics written by an earlier run. A missing file is not an
// error.
func (m *FileMetricsManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read metrics file %s: %w", m.filePath, err)
	}
	var loaded RunMetrics
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse metrics file %s: %w", m.filePath, err)
	}
	m.metrics = loaded
	return nil
}

// FormatSummary renders a multi-line summary for the end of a run.
func (m *FileMetricsManager) FormatSummary() string {
	mt := m.GetMetrics()

	var sb strings.Builder
	sb.WriteString("==================== RUN METRICS ====================\n")
	sb.WriteString(fmt.Sprintf("Runtime:            %s\n", formatDuration(mt.ElapsedSeconds)))
	sb.WriteString(fmt.Sprintf("Inputs Processed:   %d\n", mt.InputsRun))
	sb.WriteString(fmt.Sprintf("Coverage Increase:  %d (%.1f%%)\n", mt.CoverageIncrInput, safePercent(mt.CoverageIncrInput, mt.InputsRun)))
	sb.WriteString(fmt.Sprintf("Simulator Failures: %d\n", mt.SimulatorFailures))
	sb.WriteString(fmt.Sprintf("Timeouts:           %d\n", mt.Timeouts))
	sb.WriteString(fmt.Sprintf("Encode Failures:    %d\n", mt.EncodeFailures))
	sb.WriteString(fmt.Sprintf("Coverage:           %.2f%% (%d/%d points)\n", mt.CurrentCoverage, mt.CoveredPoints, mt.TotalPoints))
	sb.WriteString(fmt.Sprintf("Best Score:         %.2f\n", mt.BestScore))
	sb.WriteString(fmt.Sprintf("Speed:              %.2f inputs/sec\n", mt.InputsPerSecond))
	sb.WriteString("=====================================================\n")
	return sb.String()
}

// FormatOneLine renders a compact status line.
func (m *FileMetricsManager) FormatOneLine() string {
	mt := m.GetMetrics()
	return fmt.Sprintf("[%s] inputs:%d cov_incr:%d fail:%d timeout:%d cov:%.2f%% best:%.2f",
		formatDuration(mt.ElapsedSeconds), mt.InputsRun, mt.CoverageIncrInput,
		mt.SimulatorFailures+mt.EncodeFailures, mt.Timeouts, mt.CurrentCoverage, mt.BestScore)
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, mnt, s)
}

func safePercent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}
