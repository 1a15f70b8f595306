package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gasledger/backend/services/ingest-service/internal/statistics"
)

// Dialect selects placeholder style and DDL for a SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var schema = map[Dialect][]string{
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS statistic_series (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			unit TEXT NOT NULL,
			has_sum BOOLEAN NOT NULL DEFAULT true,
			has_mean BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS statistic_points (
			series_id TEXT NOT NULL REFERENCES statistic_series (id),
			period_start TIMESTAMPTZ NOT NULL,
			value NUMERIC NOT NULL,
			cumulative_sum NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (series_id, period_start)
		)`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS statistic_series (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			unit TEXT NOT NULL,
			has_sum BOOLEAN NOT NULL DEFAULT 1,
			has_mean BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS statistic_points (
			series_id TEXT NOT NULL REFERENCES statistic_series (id),
			period_start DATETIME NOT NULL,
			value TEXT NOT NULL,
			cumulative_sum TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (series_id, period_start)
		)`,
	},
}

// SQLStore persists series in statistic_series / statistic_points.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore returns a store over db using dialect's placeholders.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if _, ok := schema[dialect]; !ok {
		return nil, fmt.Errorf("repository: unsupported dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect, now: time.Now}, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema[s.dialect] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: ensure schema: %w", err)
		}
	}
	return nil
}

// LastPoint implements StatisticsStore.
func (s *SQLStore) LastPoint(ctx context.Context, id statistics.SeriesID) (*statistics.Point, error) {
	if err := checkSeries(id); err != nil {
		return nil, err
	}
	query := s.rebind(`
		SELECT period_start, value, cumulative_sum
		FROM statistic_points
		WHERE series_id = ?
		ORDER BY period_start DESC
		LIMIT 1
	`)
	var p statistics.Point
	err := s.db.QueryRowContext(ctx, query, string(id)).Scan(&p.PeriodStart, &p.Value, &p.Sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.PeriodStart = p.PeriodStart.UTC()
	return &p, nil
}

// Append implements StatisticsStore. All points for the series are written in one transaction.
func (s *SQLStore) Append(ctx context.Context, series statistics.Series, points []statistics.Point) (int, error) {
	if err := checkSeries(series.ID); err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	upsertSeries := s.rebind(`
		INSERT INTO statistic_series (id, name, unit, has_sum, has_mean, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, unit = excluded.unit, updated_at = excluded.updated_at
	`)
	if _, err := tx.ExecContext(ctx, upsertSeries, string(series.ID), series.Name, series.Unit, true, false, now); err != nil {
		return 0, fmt.Errorf("repository: upsert series: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO statistic_points (series_id, period_start, value, cumulative_sum, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (series_id, period_start) DO NOTHING
	`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range points {
		res, err := stmt.ExecContext(ctx, string(series.ID), p.PeriodStart.UTC(), p.Value.String(), p.Sum.String(), now)
		if err != nil {
			return 0, fmt.Errorf("repository: insert point %s: %w", p.PeriodStart.Format(time.DateOnly), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// Range implements StatisticsStore.
func (s *SQLStore) Range(ctx context.Context, id statistics.SeriesID, from, to time.Time) ([]statistics.Point, error) {
	if err := checkSeries(id); err != nil {
		return nil, err
	}

	query := `SELECT period_start, value, cumulative_sum FROM statistic_points WHERE series_id = ?`
	args := []any{string(id)}
	if !from.IsZero() {
		query += ` AND period_start >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND period_start < ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY period_start ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []statistics.Point
	for rows.Next() {
		var p statistics.Point
		if err := rows.Scan(&p.PeriodStart, &p.Value, &p.Sum); err != nil {
			return nil, err
		}
		p.PeriodStart = p.PeriodStart.UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
