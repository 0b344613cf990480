// Package harness replays stimulus inputs through a simulator and keeps the
// ones whose feedback map carries new coverage.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjy-dev/covfeed/internal/corpus"
	"github.com/zjy-dev/covfeed/internal/coverage"
	"github.com/zjy-dev/covfeed/internal/exec"
	"github.com/zjy-dev/covfeed/internal/feedback"
	"github.com/zjy-dev/covfeed/internal/logger"
	"github.com/zjy-dev/covfeed/internal/report"
	"github.com/zjy-dev/covfeed/internal/state"
	"github.com/zjy-dev/covfeed/internal/vdb"
)

// Config holds configuration for the replay engine.
type Config struct {
	// Core components
	Corpus   corpus.Manager
	Executor exec.Executor
	Tracker  *feedback.Tracker

	// Coverage database. Factory is ignored when Random is set.
	Factory      *vdb.Factory
	DatabasePath string
	Random       *coverage.RandomSource
	Options      coverage.Options

	// Simulator command; empty means the database is produced elsewhere.
	// "{input}" and "{db}" in SimulatorArgs are expanded per input.
	SimulatorCommand string
	SimulatorArgs    []string

	// Optional outputs
	Reporter report.Reporter
	State    *state.FileManager
	Metrics  *state.FileMetricsManager
	UI       *state.TerminalUI

	BackupDir         string // empty disables database backups
	ScratchDir        string // where inputs without a source file are written
	MaxIterations     int    // Maximum inputs replayed (0 = unlimited)
	SaveOnNewCoverage bool
	SaveEvery         int // State save interval in inputs
}

// Outcome is the result of replaying one input.
type Outcome struct {
	State    corpus.InputState
	Result   *coverage.Result
	Increase *coverage.CoverageIncrease
	Backup   string
	Report   string
}

// Engine replays queued inputs one at a time.
type Engine struct {
	cfg            Config
	iterationCount int
	interesting    int
	failures       int
	startTime      time.Time
}

// NewEngine creates a new replay engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Executor == nil {
		cfg.Executor = exec.NewCommandExecutor()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = feedback.NewTracker(cfg.Options.Mode)
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 10
	}
	return &Engine{cfg: cfg}
}

// Tracker returns the engine's novelty tracker.
func (e *Engine) Tracker() *feedback.Tracker {
	return e.cfg.Tracker
}

// Run replays queued inputs until the queue is empty, the iteration limit is
// reached or ctx is cancelled. A failed input is logged and skipped.
func (e *Engine) Run(ctx context.Context) error {
	e.startTime = time.Now()
	e.restore()
	logger.Info("Starting replay loop (%d inputs queued)...", e.cfg.Corpus.Len())

	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("Replay interrupted: %v", err)
			break
		}
		if e.cfg.MaxIterations > 0 && e.iterationCount >= e.cfg.MaxIterations {
			logger.Info("Reached max iterations (%d), stopping", e.cfg.MaxIterations)
			break
		}

		in, ok := e.cfg.Corpus.Next()
		if !ok {
			logger.Info("Input queue exhausted")
			break
		}
		e.iterationCount++

		out, err := e.ProcessInput(ctx, in)
		if err != nil {
			e.failures++
			logger.Error("Input %s failed: %v", describe(in), err)
		} else if out.State == corpus.InputStateInteresting {
			e.interesting++
		}

		if e.iterationCount%e.cfg.SaveEvery == 0 {
			e.saveState()
		}
		e.render()
	}

	e.saveState()
	e.printSummary()
	return nil
}

// restore seeds the tracker from persisted state when resuming.
func (e *Engine) restore() {
	if e.cfg.State == nil {
		return
	}
	st := e.cfg.State.GetState()
	if len(st.History) == 0 {
		return
	}
	e.cfg.Tracker.Restore(st.History, st.BestScore)
	logger.Info("Resumed coverage history (%d words, best score %.2f)", len(st.History), st.BestScore)
}

// ProcessInput replays one input: simulate, extract the feedback map, judge
// it and record the result. The returned error is the reason the input
// failed; the result has been reported to the corpus either way.
func (e *Engine) ProcessInput(ctx context.Context, in *corpus.Input) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{State: corpus.InputStateProcessed}

	sim, err := e.simulate(ctx, in)
	if err != nil {
		out.State = corpus.InputStateFailed
		if sim != nil && sim.TimedOut {
			out.State = corpus.InputStateTimeout
		}
		e.finish(in, out, start)
		return out, err
	}

	source, closeSource, err := e.openSource()
	if err != nil {
		e.recordEncodeFailure()
		out.State = corpus.InputStateFailed
		e.finish(in, out, start)
		return out, err
	}
	defer closeSource()

	res, err := coverage.NewEncoder(source, e.cfg.Options).Encode()
	if err != nil {
		e.recordEncodeFailure()
		out.State = corpus.InputStateFailed
		e.finish(in, out, start)
		return out, fmt.Errorf("failed to encode feedback map: %w", err)
	}
	out.Result = res
	logger.Debug("Input %s: %d words, %d/%d covered, score %.2f",
		describe(in), len(res.Words), res.Totals.Covered, res.Totals.Coverable, res.Score)

	if improved := e.cfg.Tracker.ObserveScore(res.Score); improved {
		logger.Debug("New best score %.2f", res.Score)
	}

	increased, err := e.cfg.Tracker.HasIncreased(res.Words)
	if err != nil {
		out.State = corpus.InputStateFailed
		e.finish(in, out, start)
		return out, err
	}
	if increased {
		if err := e.handleNewCoverage(in, out, source, sim); err != nil {
			logger.Warn("Failed to record new coverage of %s: %v", describe(in), err)
		}
	}

	e.finish(in, out, start)
	return out, nil
}

// simulate runs the simulator for in. It returns nil when no simulator is
// configured.
func (e *Engine) simulate(ctx context.Context, in *corpus.Input) (*exec.ExecutionResult, error) {
	if e.cfg.SimulatorCommand == "" {
		return nil, nil
	}

	inputPath, err := e.inputPath(in)
	if err != nil {
		return nil, err
	}
	args := exec.ExpandArgs(e.cfg.SimulatorArgs, map[string]string{
		"input": inputPath,
		"db":    e.cfg.DatabasePath,
	})

	logger.Debug("Running simulator: %s %s", e.cfg.SimulatorCommand, strings.Join(args, " "))
	var res *exec.ExecutionResult
	if ce, ok := e.cfg.Executor.(*exec.CommandExecutor); ok {
		res, err = ce.RunContext(ctx, e.cfg.SimulatorCommand, args...)
	} else {
		res, err = e.cfg.Executor.Run(e.cfg.SimulatorCommand, args...)
	}
	if err != nil {
		e.recordSimulatorFailure()
		return nil, fmt.Errorf("failed to run simulator: %w", err)
	}
	if res.TimedOut {
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.RecordTimeout()
		}
		return res, fmt.Errorf("simulator timed out after %s", res.Duration.Round(time.Millisecond))
	}
	if res.ExitCode != 0 {
		// Failing tests still dump coverage.
		e.recordSimulatorFailure()
		logger.Warn("Simulator exited with code %d for %s", res.ExitCode, describe(in))
	}
	return res, nil
}

// inputPath returns a file holding the input's bytes.
func (e *Engine) inputPath(in *corpus.Input) (string, error) {
	if in.Meta.Source != "" {
		return in.Meta.Source, nil
	}
	dir := e.cfg.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	path := filepath.Join(dir, "current_input.bin")
	if err := os.WriteFile(path, in.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write input: %w", err)
	}
	return path, nil
}

// openSource returns the coverage source for the current database and a
// function releasing it.
func (e *Engine) openSource() (coverage.Source, func(), error) {
	if e.cfg.Random != nil {
		return e.cfg.Random, func() {}, nil
	}
	if e.cfg.Factory == nil {
		return nil, nil, errors.New("no coverage database configured")
	}

	session, err := e.cfg.Factory.Open(e.cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close %s: %v", session.Path(), err)
		}
	}
	return coverage.NewSessionSource(session), release, nil
}

func (e *Engine) handleNewCoverage(in *corpus.Input, out *Outcome, source coverage.Source, sim *exec.ExecutionResult) error {
	inc, err := e.cfg.Tracker.GetIncrease(out.Result.Words)
	if err != nil {
		return err
	}
	if err := e.cfg.Tracker.Merge(out.Result.Words); err != nil {
		return err
	}
	out.State = corpus.InputStateInteresting
	out.Increase = inc
	in.Meta.NewPoints = inc.NewlyCoveredPoints
	logger.Info("New coverage from %s: %s (score %.2f)", describe(in), inc.Summary, out.Result.Score)

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordCoverageIncrease()
	}

	var errs []error
	if e.cfg.SaveOnNewCoverage {
		if err := e.cfg.Corpus.Add(in); err != nil {
			errs = append(errs, fmt.Errorf("failed to save input: %w", err))
		}
	}

	if e.cfg.BackupDir != "" && e.cfg.Random == nil {
		backup, err := e.backupDatabase(in.Meta.ID)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Backup = backup
		}
	}

	if e.cfg.Reporter != nil {
		stats, _ := e.cfg.Tracker.GetStats()
		ev := &report.Event{
			InputID:   in.Meta.ID,
			Source:    in.Meta.Source,
			Database:  e.cfg.DatabasePath,
			Backup:    out.Backup,
			Options:   e.cfg.Options,
			Totals:    out.Result.Totals,
			Score:     out.Result.Score,
			Increase:  inc,
			Stats:     stats,
			Simulator: sim,
		}
		if ss, ok := source.(*coverage.SessionSource); ok {
			if rows, err := ss.Breakdown(e.cfg.Options); err == nil {
				ev.Instances = rows
			}
		}
		path, err := e.cfg.Reporter.Save(ev)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Report = path
			logger.Debug("Report saved to %s", path)
		}
	}
	return errors.Join(errs...)
}

// backupDatabase copies the database directory next to the corpus.
func (e *Engine) backupDatabase(id uint64) (string, error) {
	if err := os.MkdirAll(e.cfg.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(e.cfg.DatabasePath), ".vdb")
	dst := filepath.Join(e.cfg.BackupDir, fmt.Sprintf("coverage_%s_%d.vdb", name, id))

	res, err := e.cfg.Executor.Run("cp", "-r", e.cfg.DatabasePath, dst)
	if err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", e.cfg.DatabasePath, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("failed to back up %s: %s", e.cfg.DatabasePath, strings.TrimSpace(res.Stderr))
	}
	return dst, nil
}

// finish reports the outcome to the corpus and the persisted counters.
func (e *Engine) finish(in *corpus.Input, out *Outcome, start time.Time) {
	elapsed := time.Since(start)
	result := corpus.RunResult{
		State:      out.State,
		ExecTimeUs: elapsed.Microseconds(),
	}
	if out.Result != nil {
		result.Covered = uint32(out.Result.Totals.Covered)
		result.Coverable = uint32(out.Result.Totals.Coverable)
		result.Score = out.Result.Score
	}
	if out.Increase != nil {
		result.NewPoints = out.Increase.NewlyCoveredPoints
	}
	if err := e.cfg.Corpus.ReportResult(in, result); err != nil {
		logger.Warn("Failed to report result of %s: %v", describe(in), err)
	}

	stats, _ := e.cfg.Tracker.GetStats()
	best := e.cfg.Tracker.BestScore()
	if e.cfg.State != nil {
		e.cfg.State.UpdateCurrentID(in.Meta.ID)
		e.cfg.State.UpdateCoverage(uint32(stats.CoveredPoints), uint32(stats.TotalPoints), best, e.cfg.Tracker.History())
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordInputProcessed(elapsed)
		e.cfg.Metrics.UpdateCoverageStats(stats.CoveragePercentage, best, stats.CoveredPoints, stats.TotalPoints)
	}
}

func (e *Engine) recordSimulatorFailure() {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordSimulatorFailure()
	}
}

func (e *Engine) recordEncodeFailure() {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordEncodeFailure()
	}
}

func (e *Engine) render() {
	if e.cfg.UI == nil || e.cfg.Metrics == nil {
		return
	}
	e.cfg.UI.SetMetrics(e.cfg.Metrics.GetMetrics())
	e.cfg.UI.Render()
}

// saveState persists the corpus state and metrics.
func (e *Engine) saveState() {
	if err := e.cfg.Corpus.Save(); err != nil {
		logger.Error("Failed to save corpus state: %v", err)
	}
	if e.cfg.State != nil {
		if err := e.cfg.State.Save(); err != nil {
			logger.Error("Failed to save state: %v", err)
		}
	}
	if e.cfg.Metrics != nil {
		if err := e.cfg.Metrics.Save(); err != nil {
			logger.Error("Failed to save metrics: %v", err)
		}
	}
}

func (e *Engine) printSummary() {
	duration := time.Since(e.startTime)
	stats, _ := e.cfg.Tracker.GetStats()

	logger.Info("========================================")
	logger.Info("Replay Summary")
	logger.Info("========================================")
	logger.Info("Duration: %s", duration.Round(time.Second))
	logger.Info("Inputs replayed: %d", e.iterationCount)
	logger.Info("New coverage: %d", e.interesting)
	logger.Info("Failures: %d", e.failures)
	logger.Info("Accumulated coverage: %.2f%% (%d/%d)", stats.CoveragePercentage, stats.CoveredPoints, stats.TotalPoints)
	logger.Info("Best score: %.2f", e.cfg.Tracker.BestScore())
	logger.Info("========================================")
}

// Stats returns the replayed, new-coverage and failed input counts.
func (e *Engine) Stats() (replayed, interesting, failures int) {
	return e.iterationCount, e.interesting, e.failures
}

func describe(in *corpus.Input) string {
	if in.Meta.Source != "" {
		return filepath.Base(in.Meta.Source)
	}
	return fmt.Sprintf("id-%06d", in.Meta.ID)
}
