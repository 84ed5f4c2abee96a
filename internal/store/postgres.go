package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Postgres manages the PostgreSQL connection.
type Postgres struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initPostgresSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Postgres{conn: conn}, nil
}

// initPostgresSchema creates the necessary tables if they don't exist (Auto-Migration).
func initPostgresSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS patient_results (
			id TEXT PRIMARY KEY,
			patient_name TEXT NOT NULL,
			video_id TEXT NOT NULL DEFAULT '',
			latency DOUBLE PRECISION NOT NULL,
			constriction_amplitude DOUBLE PRECISION NOT NULL,
			baseline_size DOUBLE PRECISION NOT NULL,
			pipr DOUBLE PRECISION,
			gaze_sd_x DOUBLE PRECISION,
			gaze_sd_y DOUBLE PRECISION,
			bcea DOUBLE PRECISION NOT NULL,
			saccades INT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			csv_path TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS series_samples (
			result_id TEXT NOT NULL REFERENCES patient_results(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			capture_ts DOUBLE PRECISION NOT NULL,
			elapsed DOUBLE PRECISION NOT NULL,
			since_stimulus DOUBLE PRECISION NOT NULL,
			pupil_radius_mm DOUBLE PRECISION NOT NULL,
			gaze_x DOUBLE PRECISION,
			gaze_y DOUBLE PRECISION,
			PRIMARY KEY (result_id, seq)
		);
		CREATE INDEX IF NOT EXISTS patient_results_patient_idx ON patient_results (patient_name);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Postgres) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// SaveResult inserts the summary row and bulk-copies its series in one transaction.
func (s *Postgres) SaveResult(ctx context.Context, rec Record) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	args := append(resultArgs(rec), rec.RecordedAt)
	_, err = tx.Exec(ctx, `INSERT INTO patient_results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, args...)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	rows := make([][]any, len(rec.Series))
	for i, r := range rec.Series {
		gx, gy := gazeXY(r)
		rows[i] = []any{rec.ID, i, r.Timestamp, r.Elapsed, r.SinceStimulus, r.PupilRadiusMM, gx, gy}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"series_samples"},
		[]string{"result_id", "seq", "capture_ts", "elapsed", "since_stimulus", "pupil_radius_mm", "gaze_x", "gaze_y"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy series: %w", err)
	}

	return tx.Commit(ctx)
}

func scanPostgresRecord(sc scanner) (Record, error) {
	var rec Record
	var notes string
	if err := sc.Scan(append(resultFields(&rec, &notes), &rec.RecordedAt)...); err != nil {
		return rec, err
	}
	rec.Summary.Notes = splitNotes(notes)
	return rec, nil
}

// ListResults returns every stored result, newest first.
func (s *Postgres) ListResults(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+resultColumns+` FROM patient_results ORDER BY recorded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetResult fetches one result together with its series.
func (s *Postgres) GetResult(ctx context.Context, id string) (Record, error) {
	rec, err := scanPostgresRecord(s.conn.QueryRow(ctx, `SELECT `+resultColumns+` FROM patient_results WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}

	rows, err := s.conn.Query(ctx, `SELECT `+seriesColumns+` FROM series_samples WHERE result_id = $1 ORDER BY seq`, id)
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
func (s *Postgres) RenamePatient(ctx context.Context, id, name string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE patient_results SET patient_name = $1 WHERE id = $2", name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// The schema is recreated on the next connection.
func (s *Postgres) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS series_samples CASCADE;
		DROP TABLE IF EXISTS patient_results CASCADE;
	`)
	return err
}

var _ Store = (*Postgres)(nil)
