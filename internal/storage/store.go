// Package storage keeps finished driver runs on disk, one directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/remdrive/internal/metrics"
	"github.com/san-kum/remdrive/internal/structure"
)

const (
	metadataFile    = "metadata.json"
	checkpointsFile = "checkpoints.csv"
	structuresFile  = "structures.xyz"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Config       string             `json:"config"`
	Timestamp    time.Time          `json:"timestamp"`
	Seed         int64              `json:"seed"`
	ShuffleSeed  int64              `json:"shuffle_seed"`
	Steps        int                `json:"steps"`
	Rounds       int                `json:"rounds"`
	Property     string             `json:"property"`
	Replicas     int                `json:"replicas"`
	Permutations [][]int            `json:"permutations,omitempty"`
	Metrics      map[string]float64 `json:"metrics"`
}

// Save writes a run under a fresh time-ordered ID and returns the ID. A
// failed save leaves no run directory behind.
func (s *Store) Save(meta RunMetadata, checkpoints []metrics.Checkpoint, structures []structure.Structure) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	meta.ID = id.String()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Replicas = len(structures)

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeRun(runDir, meta, checkpoints, structures); err != nil {
		os.RemoveAll(runDir)
		return "", err
	}
	return meta.ID, nil
}

func writeRun(runDir string, meta RunMetadata, checkpoints []metrics.Checkpoint, structures []structure.Structure) error {
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return err
	}
	if err := writeCheckpoints(filepath.Join(runDir, checkpointsFile), checkpoints); err != nil {
		return err
	}
	return writeStructures(filepath.Join(runDir, structuresFile), structures)
}

// Remove deletes a saved run and everything under it.
func (s *Store) Remove(runID string) error {
	if runID == "" || runID != filepath.Base(runID) {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return os.RemoveAll(filepath.Join(s.baseDir, runID))
}

// closeFile folds the close error of a written file into err.
func closeFile(f *os.File, err *error) {
	if cerr := f.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func writeStructures(path string, structures []structure.Structure) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeFile(f, &err)
	return structure.EncodeAll(f, structures)
}

func writeJSON(path string, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeFile(f, &err)

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCheckpoints(path string, checkpoints []metrics.Checkpoint) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeFile(f, &err)

	w := csv.NewWriter(f)
	if err := w.Write([]string{"round", "step", "property", "value"}); err != nil {
		return err
	}
	for _, c := range checkpoints {
		row := []string{
			strconv.Itoa(c.Round),
			strconv.Itoa(c.Step),
			c.Property,
			strconv.FormatFloat(c.Value, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadCheckpoints(runID string) ([]metrics.Checkpoint, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, checkpointsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []metrics.Checkpoint{}, nil
	}

	out := make([]metrics.Checkpoint, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != 4 {
			return nil, fmt.Errorf("%s line %d: want 4 fields, got %d", checkpointsFile, i+2, len(record))
		}
		round, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", checkpointsFile, i+2, err)
		}
		step, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", checkpointsFile, i+2, err)
		}
		value, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", checkpointsFile, i+2, err)
		}
		out = append(out, metrics.Checkpoint{Round: round, Step: step, Property: record[2], Value: value})
	}
	return out, nil
}

func (s *Store) LoadStructures(runID string) ([]structure.Structure, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, structuresFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return structure.DecodeAll(f)
}
