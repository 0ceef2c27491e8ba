package sqlstore

import (
	"context"
	"fmt"
)

// migrations are applied in order; applied versions are recorded in
// schema_versions. Each entry carries one statement set per dialect.
var migrations = []struct {
	version  int
	sqlite   string
	postgres string
}{
	{
		version: 1,
		sqlite: `
CREATE TABLE IF NOT EXISTS metric_points (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    measurement  TEXT    NOT NULL,
    tags         TEXT    NOT NULL DEFAULT '{}',
    fields       TEXT    NOT NULL,
    timestamp    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metric_points_measurement_ts ON metric_points(measurement, timestamp);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS metric_points (
    id           BIGSERIAL PRIMARY KEY,
    measurement  TEXT      NOT NULL,
    tags         TEXT      NOT NULL DEFAULT '{}',
    fields       TEXT      NOT NULL,
    timestamp    BIGINT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metric_points_measurement_ts ON metric_points(measurement, timestamp);
`,
	},
	// Migration 2: retention sweeps scan by timestamp alone
	{
		version:  2,
		sqlite:   `CREATE INDEX IF NOT EXISTS idx_metric_points_ts ON metric_points(timestamp);`,
		postgres: `CREATE INDEX IF NOT EXISTS idx_metric_points_ts ON metric_points(timestamp);`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	versions := `CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := s.db.ExecContext(ctx, versions); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`), m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		stmt := m.sqlite
		if s.driver == DriverPostgres {
			stmt = m.postgres
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_versions(version) VALUES(?)`), m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}
