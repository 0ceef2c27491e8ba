package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the SQL driver and data source.
type Config struct {
	Driver string
	DSN    string
}

// Store persists metric points in one append-only table.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

type pointRow struct {
	ID        int64  `db:"id"`
	Tags      string `db:"tags"`
	Fields    string `db:"fields"`
	Timestamp int64  `db:"timestamp"`
}

// New opens the database, applies migrations and verifies connectivity.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		db, err = sqlx.Open(DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.DSN, err)
		}
		// SQLite serialises writers; one connection also keeps ":memory:"
		// databases from splitting across the pool.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=5000`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	case DriverPostgres:
		db, err = sqlx.ConnectContext(ctx, DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	s := &Store{db: db, driver: cfg.Driver, logger: logger.Named("sqlstore")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string { return "database/" + s.driver }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Write inserts points in one transaction. Each point runs under its own
// savepoint, so a rejected point is skipped without aborting the batch.
func (s *Store) Write(ctx context.Context, points []models.MetricPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := tx.Rebind(`INSERT INTO metric_points (measurement, tags, fields, timestamp) VALUES (?, ?, ?, ?)`)
	written := 0
	for i, p := range points {
		if err := p.Validate(); err != nil {
			s.logger.Warn("skipping invalid metric point", zap.Int("index", i), zap.Error(err))
			continue
		}
		tags, fields, err := encodePoint(p)
		if err != nil {
			s.logger.Warn("skipping unencodable metric point",
				zap.String("measurement", p.Measurement), zap.Error(err))
			continue
		}

		if _, err := tx.ExecContext(ctx, `SAVEPOINT metric_point`); err != nil {
			return 0, fmt.Errorf("savepoint: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert, p.Measurement, tags, fields, p.Timestamp.UnixNano()); err != nil {
			s.logger.Warn("metric point insert failed",
				zap.String("measurement", p.Measurement), zap.Error(err))
			if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT metric_point`); rbErr != nil {
				return 0, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT metric_point`); err != nil {
			return 0, fmt.Errorf("release savepoint: %w", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit write: %w", err)
	}
	return written, nil
}

// Query returns one row per field of every matching point, ascending by
// timestamp. Tag filtering happens after decoding the tag blob.
func (s *Store) Query(ctx context.Context, q models.Query) ([]models.Row, error) {
	var rows []pointRow
	query := s.db.Rebind(`
SELECT id, tags, fields, timestamp
FROM metric_points
WHERE measurement = ? AND timestamp >= ? AND timestamp <= ?
ORDER BY timestamp ASC, id ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, q.Measurement, q.Start.UnixNano(), q.End.UnixNano()); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Measurement, err)
	}

	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		var tags map[string]string
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			s.logger.Warn("skipping row with corrupt tags", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		if !q.Tags.Matches(tags) {
			continue
		}
		var fields map[string]float64
		if err := json.Unmarshal([]byte(r.Fields), &fields); err != nil {
			s.logger.Warn("skipping row with corrupt fields", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		p := models.MetricPoint{
			Measurement: q.Measurement,
			Tags:        tags,
			Fields:      fields,
			Timestamp:   time.Unix(0, r.Timestamp).UTC(),
		}
		out = append(out, p.Rows()...)
	}
	return out, nil
}

// DeleteOlderThan removes every point with timestamp before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM metric_points WHERE timestamp < ?`), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func encodePoint(p models.MetricPoint) (string, string, error) {
	tags := p.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	tb, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}
	fb, err := json.Marshal(p.Fields)
	if err != nil {
		return "", "", fmt.Errorf("encode fields: %w", err)
	}
	return string(tb), string(fb), nil
}
