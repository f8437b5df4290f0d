package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/remdrive/internal/metrics"
	"github.com/san-kum/remdrive/internal/structure"
)

type ExportData struct {
	Run         RunMetadata           `json:"run"`
	Checkpoints []metrics.Checkpoint  `json:"checkpoints"`
	Structures  []structure.Structure `json:"structures"`
}

// Export writes a stored run as a single JSON document.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	cps, err := s.LoadCheckpoints(runID)
	if err != nil {
		return err
	}
	structures, err := s.LoadStructures(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Run: *meta, Checkpoints: cps, Structures: structures})
}
