// Package store persists scraped records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/PavelSimon/EDC-data/models"
)

// Schema creates the record table. Dates are stored as ISO text so that
// range comparisons work at day granularity.
const Schema = `
CREATE TABLE IF NOT EXISTS edc_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	time_period VARCHAR(20) NOT NULL,
	positive_flexibility REAL,
	negative_flexibility REAL,
	shared_electricity REAL,
	UNIQUE (date, time_period)
);
CREATE INDEX IF NOT EXISTS edc_data_date ON edc_data (date);
`

// Store is a SQLite-backed record store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies Schema. Use
// ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// HasRange reports whether any record falls inside r.
func (s *Store) HasRange(ctx context.Context, r models.DateRange) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM edc_data WHERE date >= ? AND date <= ? LIMIT 1`,
		r.Start.String(), r.End.String(),
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query range %s: %w", r, err)
	}
	return true, nil
}

// InsertRecords stores records in one transaction. Nothing is stored when
// any insert fails.
func (s *Store) InsertRecords(ctx context.Context, records []models.Record) (n int, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Error("rollback failed", slog.Any("error", rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO edc_data
		(date, time_period, positive_flexibility, negative_flexibility, shared_electricity)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Date.String(),
			rec.TimePeriod,
			rec.PositiveFlexibility,
			rec.NegativeFlexibility,
			rec.SharedElectricity,
		); err != nil {
			return 0, fmt.Errorf("insert %s %s: %w", rec.Date, rec.TimePeriod, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

// Records returns the stored records inside r, by date and then in
// insertion order.
func (s *Store) Records(ctx context.Context, r models.DateRange) ([]models.Record, error) {
	return s.query(ctx,
		`SELECT date, time_period, positive_flexibility, negative_flexibility, shared_electricity
		FROM edc_data WHERE date >= ? AND date <= ? ORDER BY date, id`,
		r.Start.String(), r.End.String(),
	)
}

// AllRecords returns every stored record.
func (s *Store) AllRecords(ctx context.Context) ([]models.Record, error) {
	return s.query(ctx,
		`SELECT date, time_period, positive_flexibility, negative_flexibility, shared_electricity
		FROM edc_data ORDER BY date, id`,
	)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var (
			date             string
			rec              models.Record
			pos, neg, shared sql.NullFloat64
		)
		if err := rows.Scan(&date, &rec.TimePeriod, &pos, &neg, &shared); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if rec.Date, err = models.ParseDate(date); err != nil {
			return nil, err
		}
		rec.PositiveFlexibility = pos.Float64
		rec.NegativeFlexibility = neg.Float64
		rec.SharedElectricity = shared.Float64
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edc_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Write stores a pipeline batch, so a Store can serve as a pipeline.Sink.
func (s *Store) Write(records []models.Record) error {
	_, err := s.InsertRecords(context.Background(), records)
	return err
}

// Validate ensures the store holds at least one record.
func (s *Store) Validate() error {
	n, err := s.Count(context.Background())
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store is empty")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
