package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/parking-recommender/internal/domain"
)

// File names read by FileSource.
const (
	LegacyTariffsFile   = "legacy_tariffs.json"
	RealtimeTariffsFile = "realtime_tariffs.json"
	OccupancyFile       = "occupancy.json"
)

// FileSource reads reference data from JSON files in a directory.
type FileSource struct {
	Dir string
}

func (s FileSource) Load(_ context.Context) (Dataset, error) {
	var ds Dataset
	if err := readJSON(filepath.Join(s.Dir, LegacyTariffsFile), &ds.Legacy); err != nil {
		return Dataset{}, err
	}
	if err := readJSON(filepath.Join(s.Dir, RealtimeTariffsFile), &ds.Realtime); err != nil {
		return Dataset{}, err
	}
	if err := readJSON(filepath.Join(s.Dir, OccupancyFile), &ds.Occupancy); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// WriteFiles writes a dataset in the layout FileSource reads.
func WriteFiles(dir string, ds Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	files := map[string]any{
		LegacyTariffsFile:   ds.Legacy,
		RealtimeTariffsFile: ds.Realtime,
		OccupancyFile:       ds.Occupancy,
	}
	for name, v := range files {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrReferenceSchema, filepath.Base(path), err)
	}
	return nil
}
