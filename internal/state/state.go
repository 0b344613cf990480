package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// StateFileName is the name of the global state file.
	StateFileName = "global_state.json"
)

// RunStats holds counters of the replay loop.
type RunStats struct {
	Processed   int `json:"processed"`
	Interesting int `json:"interesting"`
	Failures    int `json:"failures"`
}

// GlobalState represents the persistent state of a feedback run.
// It is used for resume functionality and tracking overall progress.
type GlobalState struct {
	LastAllocatedID uint64   `json:"last_allocated_id"` // Next corpus ID will be this + 1
	CurrentInputID  uint64   `json:"current_input_id"`  // ID of the input currently being replayed
	BestScore       float64  `json:"best_score"`
	TotalCovered    uint32   `json:"total_covered"`
	TotalCoverable  uint32   `json:"total_coverable"`
	History         []uint32 `json:"history,omitempty"` // accumulated feedback map
	Stats           RunStats `json:"run_stats"`
}

// Manager handles the persistence and modification of the global state.
type Manager interface {
	// Load reads the state from disk.
	Load() error

	// Save writes the state to disk.
	Save() error

	// NextID increments and returns the next unique corpus ID.
	NextID() uint64

	// UpdateCurrentID sets the ID currently being replayed.
	UpdateCurrentID(id uint64)

	// UpdateCoverage records the accumulated totals, best score and history.
	UpdateCoverage(covered, coverable uint32, bestScore float64, history []uint32)

	// IncrementProcessed increments the processed count.
	IncrementProcessed()

	// IncrementInteresting increments the count of inputs with new coverage.
	IncrementInteresting()

	// IncrementFailures increments the count of failed test cases.
	IncrementFailures()

	// GetState returns a copy of the current state.
	GetState() GlobalState
}

// FileManager is a file-backed implementation of the Manager interface.
type FileManager struct {
	mu       sync.Mutex
	filePath string
	state    GlobalState
}

// NewFileManager creates a new FileManager for the given directory.
// The state file will be stored at dir/global_state.json.
func NewFileManager(dir string) *FileManager {
	return &FileManager{
		filePath: filepath.Join(dir, StateFileName),
	}
}

// Load reads the state from disk.
// If the file doesn't exist, it initializes with default values.
func (m *FileManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = GlobalState{}
			return nil
		}
		return fmt.Errorf("failed to read state file %s: %w", m.filePath, err)
	}

	var loaded GlobalState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", m.filePath, err)
	}
	m.state = loaded
	return nil
}

// Save writes the state to disk.
func (m *FileManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write then rename so an interrupted save keeps the previous state.
	tmp := m.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.filePath); err != nil {
		return fmt.Errorf("failed to replace state file %s: %w", m.filePath, err)
	}

	return nil
}

// NextID increments and returns the next unique corpus ID.
// IDs start from 1.
func (m *FileManager) NextID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastAllocatedID++
	return m.state.LastAllocatedID
}

// UpdateCurrentID sets the ID currently being replayed.
func (m *FileManager) UpdateCurrentID(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.CurrentInputID = id
}

// UpdateCoverage records the accumulated totals, best score and history.
func (m *FileManager) UpdateCoverage(covered, coverable uint32, bestScore float64, history []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TotalCovered = covered
	m.state.TotalCoverable = coverable
	m.state.BestScore = bestScore
	m.state.History = append([]uint32(nil), history...)
}

// IncrementProcessed increments the processed count.
func (m *FileManager) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Stats.Processed++
}

// IncrementInteresting increments the count of inputs with new coverage.
func (m *FileManager) IncrementInteresting() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Stats.Interesting++
}

// IncrementFailures increments the count of failed test cases.
func (m *FileManager) IncrementFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Stats.Failures++
}

// GetState returns a copy of the current state.
func (m *FileManager) GetState() GlobalState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	s.History = append([]uint32(nil), m.state.History...)
	return s
}

// GetFilePath returns the path to the state file.
func (m *FileManager) GetFilePath() string {
	return m.filePath
}
