// Package reference holds the read-only reference data shared by every
// request: the legacy and real-time tariff registries and the historical
// occupancy aggregates. Everything here is built once at startup and never
// mutated afterwards.
package reference

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/domain"
)

// Dataset is the raw reference data as delivered by a Source.
type Dataset struct {
	Legacy    []TariffRow
	Realtime  []TariffRow
	Occupancy []OccupancyRecord
}

// Source loads raw reference data.
type Source interface {
	Load(ctx context.Context) (Dataset, error)
}

// Context is the resolved, immutable reference data.
type Context struct {
	Legacy   *TariffTable
	Realtime *TariffTable
	History  *History
	LoadedAt time.Time
}

// Table returns the tariff table of a registry.
func (c *Context) Table(r Registry) *TariffTable {
	if r == RealtimeRegistry {
		return c.Realtime
	}
	return c.Legacy
}

// Build resolves a raw dataset.
func Build(ds Dataset) (*Context, error) {
	legacy, err := NewTariffTable(LegacyRegistry, ds.Legacy)
	if err != nil {
		return nil, err
	}
	realtime, err := NewTariffTable(RealtimeRegistry, ds.Realtime)
	if err != nil {
		return nil, err
	}
	history, err := BuildHistory(ds.Occupancy)
	if err != nil {
		return nil, err
	}
	return &Context{
		Legacy:   legacy,
		Realtime: realtime,
		History:  history,
		LoadedAt: domain.Now(),
	}, nil
}

// Load fetches a dataset from src and resolves it.
func Load(ctx context.Context, src Source) (*Context, error) {
	ds, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	return Build(ds)
}
