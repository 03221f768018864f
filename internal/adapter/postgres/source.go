// Package postgres loads parking reference data from PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/parking-recommender/internal/reference"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// Schema creates the reference tables read by Source.
const Schema = `
CREATE TABLE IF NOT EXISTS legacy_tariffs (
	id           TEXT PRIMARY KEY,
	base_fee     DOUBLE PRECISION,
	base_minutes DOUBLE PRECISION,
	extra_fee    DOUBLE PRECISION,
	unit_minutes DOUBLE PRECISION,
	daily_cap    DOUBLE PRECISION,
	lat          DOUBLE PRECISION,
	lon          DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS realtime_tariffs (LIKE legacy_tariffs INCLUDING ALL);
CREATE TABLE IF NOT EXISTS occupancy (
	facility_id TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	capacity    DOUBLE PRECISION NOT NULL,
	inflow      DOUBLE PRECISION NOT NULL,
	outflow     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (facility_id, observed_at)
);`

const tariffColumns = `id, base_fee, base_minutes, extra_fee, unit_minutes, daily_cap, lat, lon`

// Source implements reference.Source over a sqlx connection pool.
type Source struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Source, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Source{db: db, logger: logger}, nil
}

// Load reads both tariff tables and the occupancy history. Rows are ordered
// so duplicate-id resolution matches the file source.
func (s *Source) Load(ctx context.Context) (reference.Dataset, error) {
	var ds reference.Dataset
	if err := s.db.SelectContext(ctx, &ds.Legacy, `SELECT `+tariffColumns+` FROM legacy_tariffs ORDER BY id`); err != nil {
		return reference.Dataset{}, fmt.Errorf("query legacy_tariffs: %w", err)
	}
	if err := s.db.SelectContext(ctx, &ds.Realtime, `SELECT `+tariffColumns+` FROM realtime_tariffs ORDER BY id`); err != nil {
		return reference.Dataset{}, fmt.Errorf("query realtime_tariffs: %w", err)
	}
	if err := s.db.SelectContext(ctx, &ds.Occupancy,
		`SELECT facility_id, observed_at, capacity, inflow, outflow FROM occupancy ORDER BY facility_id, observed_at`); err != nil {
		return reference.Dataset{}, fmt.Errorf("query occupancy: %w", err)
	}
	s.logger.Info("reference data queried",
		"legacy", len(ds.Legacy),
		"realtime", len(ds.Realtime),
		"occupancy", len(ds.Occupancy),
	)
	return ds, nil
}

// Seed replaces the contents of the reference tables with ds, creating
// them first if needed.
func (s *Source) Seed(ctx context.Context, ds reference.Dataset) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `TRUNCATE legacy_tariffs, realtime_tariffs, occupancy`); err != nil {
		return fmt.Errorf("truncate reference tables: %w", err)
	}

	insertTariffs := func(table string, rows []reference.TariffRow) error {
		q := `INSERT INTO ` + table + ` (` + tariffColumns + `)
			VALUES (:id, :base_fee, :base_minutes, :extra_fee, :unit_minutes, :daily_cap, :lat, :lon)
			ON CONFLICT (id) DO NOTHING`
		for _, chunk := range chunks(rows, 1000) {
			if _, err := tx.NamedExecContext(ctx, q, chunk); err != nil {
				return fmt.Errorf("insert %s: %w", table, err)
			}
		}
		return nil
	}
	if err := insertTariffs("legacy_tariffs", ds.Legacy); err != nil {
		return err
	}
	if err := insertTariffs("realtime_tariffs", ds.Realtime); err != nil {
		return err
	}
	for _, chunk := range chunks(ds.Occupancy, 1000) {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO occupancy (facility_id, observed_at, capacity, inflow, outflow)
			VALUES (:facility_id, :observed_at, :capacity, :inflow, :outflow)
			ON CONFLICT DO NOTHING`, chunk); err != nil {
			return fmt.Errorf("insert occupancy: %w", err)
		}
	}
	return tx.Commit()
}

// CheckReadiness pings the database.
func (s *Source) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}

// chunks splits rows into slices of at most n elements, keeping each
// multi-row INSERT under the driver's parameter limit.
func chunks[T any](rows []T, n int) [][]T {
	var out [][]T
	for len(rows) > n {
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}
