package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/andresmejia3/pupilscan/internal/biomarker"
	"github.com/andresmejia3/pupilscan/internal/types"
)

// ErrNotFound is returned when a result ID does not exist.
var ErrNotFound = errors.New("result not found")

// Record is one persisted test administration.
type Record struct {
	ID          string
	PatientName string
	VideoID     string
	RecordedAt  time.Time
	Summary     biomarker.Summary
	CSVPath     string
	Series      []biomarker.Row // only populated by GetResult
}

// Store persists biomarker results and their aligned series.
type Store interface {
	// SaveResult writes the summary and its series atomically.
	SaveResult(ctx context.Context, rec Record) error
	// ListResults returns all results, newest first, without series.
	ListResults(ctx context.Context) ([]Record, error)
	// GetResult returns one result with its series.
	GetResult(ctx context.Context, id string) (Record, error)
	RenamePatient(ctx context.Context, id, name string) error
	// Reset drops all application tables.
	Reset(ctx context.Context) error
	Close(ctx context.Context)
}

// Open picks a backend from the DSN: "sqlite:<path>" or a path ending in .db
// opens SQLite, anything else is treated as a PostgreSQL connection string.
func Open(ctx context.Context, dsn string) (Store, error) {
	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		return NewSQLite(ctx, path)
	}
	if strings.HasSuffix(dsn, ".db") {
		return NewSQLite(ctx, dsn)
	}
	return New(ctx, dsn)
}

func gazeXY(r biomarker.Row) (x, y *float64) {
	if r.Gaze == nil {
		return nil, nil
	}
	gx, gy := r.Gaze.X, r.Gaze.Y
	return &gx, &gy
}

// resultColumns is the column order shared by both backends; recorded_at is
// last because its storage type differs.
const resultColumns = `id, patient_name, video_id, latency, constriction_amplitude, baseline_size,
	pipr, gaze_sd_x, gaze_sd_y, bcea, saccades, notes, csv_path, recorded_at`

const seriesColumns = `capture_ts, elapsed, since_stimulus, pupil_radius_mm, gaze_x, gaze_y`

type scanner interface {
	Scan(dest ...any) error
}

// resultFields returns scan targets for every result column except recorded_at.
func resultFields(rec *Record, notes *string) []any {
	s := &rec.Summary
	return []any{
		&rec.ID, &rec.PatientName, &rec.VideoID, &s.Latency, &s.ConstrictionAmplitude, &s.BaselineSize,
		&s.PIPR, &s.GazeSDX, &s.GazeSDY, &s.BCEA, &s.Saccades, notes, &rec.CSVPath,
	}
}

// resultArgs returns insert arguments for every result column except recorded_at.
func resultArgs(rec Record) []any {
	s := rec.Summary
	return []any{
		rec.ID, rec.PatientName, rec.VideoID, s.Latency, s.ConstrictionAmplitude, s.BaselineSize,
		s.PIPR, s.GazeSDX, s.GazeSDY, s.BCEA, s.Saccades, strings.Join(s.Notes, "\n"), rec.CSVPath,
	}
}

func splitNotes(notes string) []string {
	if notes == "" {
		return nil
	}
	return strings.Split(notes, "\n")
}

func scanSeriesRow(sc scanner) (biomarker.Row, error) {
	var r biomarker.Row
	var gx, gy *float64
	if err := sc.Scan(&r.Timestamp, &r.Elapsed, &r.SinceStimulus, &r.PupilRadiusMM, &gx, &gy); err != nil {
		return r, err
	}
	if gx != nil && gy != nil {
		r.Gaze = &types.Point{X: *gx, Y: *gy}
	}
	return r, nil
}
