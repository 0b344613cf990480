package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileManager(t *testing.T) {
	t.Run("should initialize with default state", func(t *testing.T) {
		manager := NewFileManager(t.TempDir())

		if err := manager.Load(); err != nil {
			t.Fatalf("failed to load: %v", err)
		}

		state := manager.GetState()
		if state.LastAllocatedID != 0 {
			t.Errorf("expected LastAllocatedID 0, got %d", state.LastAllocatedID)
		}
		if state.CurrentInputID != 0 {
			t.Errorf("expected CurrentInputID 0, got %d", state.CurrentInputID)
		}
		if len(state.History) != 0 {
			t.Errorf("expected empty history, got %v", state.History)
		}
	})

	t.Run("should allocate sequential IDs", func(t *testing.T) {
		manager := NewFileManager(t.TempDir())
		_ = manager.Load()

		for want := uint64(1); want <= 3; want++ {
			if got := manager.NextID(); got != want {
				t.Errorf("expected ID %d, got %d", want, got)
			}
		}
	})

	t.Run("should save and load state", func(t *testing.T) {
		tmpDir := t.TempDir()
		manager := NewFileManager(tmpDir)
		_ = manager.Load()

		manager.NextID()
		manager.NextID()
		manager.UpdateCurrentID(2)
		manager.UpdateCoverage(5, 40, 12.5, []uint32{5, 40, 0x1F})
		manager.IncrementProcessed()
		manager.IncrementProcessed()
		manager.IncrementInteresting()
		manager.IncrementFailures()

		if err := manager.Save(); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if _, err := os.Stat(filepath.Join(tmpDir, StateFileName)); err != nil {
			t.Fatalf("state file not written: %v", err)
		}

		loaded := NewFileManager(tmpDir)
		if err := loaded.Load(); err != nil {
			t.Fatalf("failed to load: %v", err)
		}

		state := loaded.GetState()
		if state.LastAllocatedID != 2 || state.CurrentInputID != 2 {
			t.Errorf("unexpected IDs: %+v", state)
		}
		if state.TotalCovered != 5 || state.TotalCoverable != 40 || state.BestScore != 12.5 {
			t.Errorf("unexpected coverage: %+v", state)
		}
		if len(state.History) != 3 || state.History[2] != 0x1F {
			t.Errorf("unexpected history: %v", state.History)
		}
		if state.Stats != (RunStats{Processed: 2, Interesting: 1, Failures: 1}) {
			t.Errorf("unexpected stats: %+v", state.Stats)
		}
		if loaded.NextID() != 3 {
			t.Error("IDs must continue after resume")
		}
	})

	t.Run("should return a copy of the history", func(t *testing.T) {
		manager := NewFileManager(t.TempDir())
		history := []uint32{1, 2, 3}
		manager.UpdateCoverage(1, 2, 50, history)
		history[2] = 99

		state := manager.GetState()
		state.History[0] = 42
		if got := manager.GetState().History; got[0] != 1 || got[2] != 3 {
			t.Errorf("history was aliased: %v", got)
		}
	})

	t.Run("should fail on corrupt file", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(tmpDir, StateFileName), []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := NewFileManager(tmpDir).Load(); err == nil {
			t.Error("expected error for corrupt state file")
		}
	})

	t.Run("should create the state directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "state")
		manager := NewFileManager(dir)
		if err := manager.Save(); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if manager.GetFilePath() != filepath.Join(dir, StateFileName) {
			t.Errorf("unexpected path %s", manager.GetFilePath())
		}
	})
}
