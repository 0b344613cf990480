package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zjy-dev/covfeed/internal/logger"
	"github.com/zjy-dev/covfeed/internal/state"
)

const (
	// CorpusDir is the subdirectory for interesting inputs.
	CorpusDir = "corpus"
	// MetadataDir is the subdirectory for metadata files.
	MetadataDir = "metadata"
	// StateDir is the subdirectory for global state.
	StateDir = "state"
)

// RunResult contains the outcome of replaying one input.
type RunResult struct {
	State      InputState
	ExecTimeUs int64
	Covered    uint32
	Coverable  uint32
	Score      float64
	NewPoints  int
}

// Manager manages the replay queue and the corpus of interesting inputs.
type Manager interface {
	// Initialize prepares the directory structure.
	Initialize() error

	// Recover reloads the saved corpus and the global state.
	Recover() error

	// Enqueue appends inputs to the replay queue.
	Enqueue(inputs ...*Input)

	// Next retrieves the next input to replay.
	Next() (*Input, bool)

	// Add persists an interesting input under a new ID.
	Add(in *Input) error

	// ReportResult updates an input's metadata after replay.
	ReportResult(in *Input, result RunResult) error

	// Len returns the number of queued inputs.
	Len() int

	// Save persists the current state to disk.
	Save() error
}

// FileManager is a file-backed implementation of the corpus Manager.
type FileManager struct {
	mu           sync.Mutex
	baseDir      string
	corpusDir    string
	metadataDir  string
	stateDir     string
	stateManager *state.FileManager
	queue        []*Input
	saved        map[uint64]*Input
}

// NewFileManager creates a new corpus FileManager.
func NewFileManager(baseDir string) *FileManager {
	stateDir := filepath.Join(baseDir, StateDir)
	return &FileManager{
		baseDir:      baseDir,
		corpusDir:    filepath.Join(baseDir, CorpusDir),
		metadataDir:  filepath.Join(baseDir, MetadataDir),
		stateDir:     stateDir,
		stateManager: state.NewFileManager(stateDir),
		saved:        make(map[uint64]*Input),
	}
}

// Initialize prepares the directory structure.
func (m *FileManager) Initialize() error {
	for _, dir := range []string{m.corpusDir, m.metadataDir, m.stateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := m.stateManager.Load(); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	return nil
}

// Recover reloads the saved corpus and the global state.
func (m *FileManager) Recover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stateManager.Load(); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	entries, err := os.ReadDir(m.corpusDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read corpus directory %s: %w", m.corpusDir, err)
	}

	m.saved = make(map[uint64]*Input)
	for _, e := range entries {
		meta, err := ParseFilename(e.Name())
		if err != nil {
			logger.Warn("Skipping unrecognized corpus file %s", e.Name())
			continue
		}
		path := filepath.Join(m.corpusDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read corpus input %s: %w", path, err)
		}

		metaPath := filepath.Join(m.metadataDir, fmt.Sprintf("id-%06d.json", meta.ID))
		if full, err := LoadMetadataJSON(metaPath); err == nil {
			meta = full
		}
		meta.FilePath = path
		m.saved[meta.ID] = &Input{Meta: *meta, Data: data}
	}
	return nil
}

// Enqueue appends inputs to the replay queue.
func (m *FileManager) Enqueue(inputs ...*Input) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, inputs...)
}

// Next retrieves the next input to replay.
// Returns false if the queue is empty.
func (m *FileManager) Next() (*Input, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, false
	}
	in := m.queue[0]
	m.queue = m.queue[1:]
	return in, true
}

// Add persists an interesting input under a new ID.
func (m *FileManager) Add(in *Input) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.Meta.ID == 0 {
		in.Meta.ID = m.stateManager.NextID()
	}
	if in.Meta.ContentHash == "" {
		in.Meta.ContentHash = contentHash(in.Data)
	}

	path := filepath.Join(m.corpusDir, Filename(&in.Meta, in.Data))
	if err := os.MkdirAll(m.corpusDir, 0755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}
	if err := os.WriteFile(path, in.Data, 0644); err != nil {
		return fmt.Errorf("failed to save input %s: %w", path, err)
	}
	in.Meta.FilePath = path
	in.Meta.FileSize = int64(len(in.Data))
	m.saved[in.Meta.ID] = in
	return nil
}

// ReportResult updates an input's metadata after replay. Inputs that were
// added to the corpus get their metadata file written.
func (m *FileManager) ReportResult(in *Input, result RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in.Meta.State = result.State
	in.Meta.ExecTimeUs = result.ExecTimeUs
	in.Meta.Covered = result.Covered
	in.Meta.Coverable = result.Coverable
	in.Meta.Score = result.Score
	in.Meta.NewPoints = result.NewPoints

	m.stateManager.IncrementProcessed()
	switch result.State {
	case InputStateInteresting:
		m.stateManager.IncrementInteresting()
	case InputStateFailed, InputStateTimeout:
		m.stateManager.IncrementFailures()
	}

	if in.Meta.ID == 0 {
		return nil
	}
	if err := SaveMetadataJSON(m.metadataDir, &in.Meta); err != nil {
		return fmt.Errorf("failed to save metadata for input %d: %w", in.Meta.ID, err)
	}
	return nil
}

// Len returns the number of queued inputs.
func (m *FileManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Saved returns the corpus inputs ordered by ID.
func (m *FileManager) Saved() []*Input {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Input, 0, len(m.saved))
	for _, in := range m.saved {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.ID < out[j].Meta.ID })
	return out
}

// Save persists the current state to disk.
func (m *FileManager) Save() error {
	return m.stateManager.Save()
}

// GetStateManager returns the underlying state manager.
func (m *FileManager) GetStateManager() *state.FileManager {
	return m.stateManager
}

// GetCorpusDir returns the corpus directory path.
func (m *FileManager) GetCorpusDir() string {
	return m.corpusDir
}
