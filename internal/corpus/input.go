package corpus

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InputState represents the processing status of an input.
type InputState string

const (
	// InputStatePending indicates the input is queued for replay.
	InputStatePending InputState = "PENDING"
	// InputStateInteresting indicates the input produced new coverage.
	InputStateInteresting InputState = "INTERESTING"
	// InputStateProcessed indicates the input was replayed without new coverage.
	InputStateProcessed InputState = "PROCESSED"
	// InputStateFailed indicates the simulator or the extraction failed.
	InputStateFailed InputState = "FAILED"
	// InputStateTimeout indicates the simulator was killed.
	InputStateTimeout InputState = "TIMEOUT"
)

// Metadata contains the meta-information about a corpus input.
type Metadata struct {
	ID        uint64    `json:"id"`         // Global unique ID, starts from 1
	Source    string    `json:"source"`     // File the input was loaded from
	FilePath  string    `json:"file_path"`  // Path in the corpus directory
	FileSize  int64     `json:"file_size"`  // File size in bytes
	CreatedAt time.Time `json:"created_at"` // Creation timestamp

	State InputState `json:"state"`

	// Coverage of the run that produced the database.
	Covered    uint32  `json:"covered"`
	Coverable  uint32  `json:"coverable"`
	Score      float64 `json:"score"`
	NewPoints  int     `json:"new_points"`
	ExecTimeUs int64   `json:"exec_us"`

	ContentHash string `json:"content_hash,omitempty"`
}

// Input is one stimulus file replayed through the simulator.
type Input struct {
	Meta Metadata
	Data []byte
}

// filenameRegex matches: id-000123-cov-00132-a1b2c3d4.bin
var filenameRegex = regexp.MustCompile(`^id-(\d{6})-cov-(\d{5})-([a-f0-9]{8})\.bin$`)

// contentHash creates an 8-character hex hash from data.
func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%08x", h[:4])
}

// Filename returns the corpus file name of an input.
func Filename(meta *Metadata, data []byte) string {
	return fmt.Sprintf("id-%06d-cov-%05d-%s.bin", meta.ID, meta.NewPoints, contentHash(data))
}

// ParseFilename extracts the ID, new-point count and hash from a corpus file
// name.
func ParseFilename(name string) (*Metadata, error) {
	m := filenameRegex.FindStringSubmatch(name)
	if m == nil {
		return nil, fmt.Errorf("filename does not match expected format: %s", name)
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ID: %w", err)
	}
	points, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("failed to parse new points: %w", err)
	}
	return &Metadata{ID: id, NewPoints: points, ContentHash: m[3]}, nil
}

// LoadInputs reads every regular, non-hidden file of dir as a pending input,
// in name order.
func LoadInputs(dir string) ([]*Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	inputs := make([]*Input, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input %s: %w", path, err)
		}
		inputs = append(inputs, &Input{
			Meta: Metadata{
				Source:      path,
				FileSize:    int64(len(data)),
				State:       InputStatePending,
				CreatedAt:   time.Now(),
				ContentHash: contentHash(data),
			},
			Data: data,
		})
	}
	return inputs, nil
}

// SaveMetadataJSON saves the metadata as dir/id-XXXXXX.json.
func SaveMetadataJSON(dir string, meta *Metadata) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("id-%06d.json", meta.ID))
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file %s: %w", path, err)
	}
	return nil
}

// LoadMetadataJSON loads a metadata JSON file.
func LoadMetadataJSON(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}
