package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores results in a local database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and ensures the schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS patient_results (
			id TEXT PRIMARY KEY,
			patient_name TEXT NOT NULL,
			video_id TEXT NOT NULL DEFAULT '',
			latency REAL NOT NULL,
			constriction_amplitude REAL NOT NULL,
			baseline_size REAL NOT NULL,
			pipr REAL,
			gaze_sd_x REAL,
			gaze_sd_y REAL,
			bcea REAL NOT NULL,
			saccades INTEGER NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			csv_path TEXT NOT NULL DEFAULT '',
			recorded_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS series_samples (
			result_id TEXT NOT NULL REFERENCES patient_results(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			capture_ts REAL NOT NULL,
			elapsed REAL NOT NULL,
			since_stimulus REAL NOT NULL,
			pupil_radius_mm REAL NOT NULL,
			gaze_x REAL,
			gaze_y REAL,
			PRIMARY KEY (result_id, seq)
		);
		CREATE INDEX IF NOT EXISTS patient_results_patient_idx ON patient_results (patient_name);
	`)
	return err
}

// Close releases the database handle.
func (s *SQLite) Close(ctx context.Context) {
	s.db.Close()
}

// SaveResult writes the summary row and its series in one transaction.
func (s *SQLite) SaveResult(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	args := append(resultArgs(rec), rec.RecordedAt.UnixMilli())
	_, err = tx.ExecContext(ctx, `INSERT INTO patient_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO series_samples (result_id, seq, `+seriesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range rec.Series {
		gx, gy := gazeXY(r)
		if _, err := stmt.ExecContext(ctx, rec.ID, i, r.Timestamp, r.Elapsed, r.SinceStimulus, r.PupilRadiusMM, gx, gy); err != nil {
			return fmt.Errorf("insert series row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func scanSQLiteRecord(sc scanner) (Record, error) {
	var rec Record
	var notes string
	var recordedMs int64
	if err := sc.Scan(append(resultFields(&rec, &notes), &recordedMs)...); err != nil {
		return rec, err
	}
	rec.Summary.Notes = splitNotes(notes)
	rec.RecordedAt = time.UnixMilli(recordedMs)
	return rec, nil
}

// ListResults returns every stored result, newest first.
func (s *SQLite) ListResults(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM patient_results ORDER BY recorded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetResult fetches one result together with its series.
func (s *SQLite) GetResult(ctx context.Context, id string) (Record, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM patient_results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+seriesColumns+` FROM series_samples WHERE result_id = ? ORDER BY seq`, id)
	if err != nil {
		return rec, err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanSeriesRow(rows)
		if err != nil {
			return rec, err
		}
		rec.Series = append(rec.Series, r)
	}
	return rec, rows.Err()
}

// RenamePatient updates the patient label of a stored result.
func (s *SQLite) RenamePatient(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE patient_results SET patient_name = ? WHERE id = ?", name, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset drops all application tables.
func (s *SQLite) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS series_samples;
		DROP TABLE IF EXISTS patient_results;
	`)
	return err
}

var _ Store = (*SQLite)(nil)
