// Package export writes the aligned series and summary for plotting and report tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/pupilscan/internal/biomarker"
	"github.com/andresmejia3/pupilscan/internal/utils"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SeriesHeader is the column order of the series table.
var SeriesHeader = []string{"timestamp", "elapsed", "pupil_radius_mm", "gaze_x", "gaze_y", "since_stimulus"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSeriesCSV writes one line per row. Missing gaze values are empty cells.
func WriteSeriesCSV(w io.Writer, rows []biomarker.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SeriesHeader); err != nil {
		return err
	}
	for _, r := range rows {
		gx, gy := "", ""
		if r.Gaze != nil {
			gx, gy = formatFloat(r.Gaze.X), formatFloat(r.Gaze.Y)
		}
		rec := []string{
			formatFloat(r.Timestamp),
			formatFloat(r.Elapsed),
			formatFloat(r.PupilRadiusMM),
			gx, gy,
			formatFloat(r.SinceStimulus),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SummaryDocument is the JSON shape handed to report renderers.
type SummaryDocument struct {
	ID      string            `json:"id,omitempty"`
	Patient string            `json:"patient"`
	CSVPath string            `json:"csv_path,omitempty"`
	Summary biomarker.Summary `json:"summary"`
}

// WriteSummaryJSON writes doc as indented JSON.
func WriteSummaryJSON(w io.Writer, doc SummaryDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Paths are the files written for one administration.
type Paths struct {
	CSV     string
	Summary string
}

// runBase is the file name prefix of one run: the patient label, plus the
// leading part of the result ID so repeat administrations don't collide.
func runBase(doc SummaryDocument) string {
	base := utils.SafeFilename(doc.Patient)
	if id := utils.SafeFilename(doc.ID); doc.ID != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		base += "_" + id
	}
	return base
}

// WriteRun writes <patient>_<id>_pupil_gaze_data.csv and <patient>_<id>_summary.json into dir.
func WriteRun(dir string, doc SummaryDocument, rows []biomarker.Row) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("ensure output directory: %w", err)
	}
	base := runBase(doc)
	p := Paths{
		CSV:     filepath.Join(dir, base+"_pupil_gaze_data.csv"),
		Summary: filepath.Join(dir, base+"_summary.json"),
	}
	doc.CSVPath = p.CSV

	if err := writeFile(p.CSV, func(w io.Writer) error { return WriteSeriesCSV(w, rows) }); err != nil {
		return Paths{}, err
	}
	if err := writeFile(p.Summary, func(w io.Writer) error { return WriteSummaryJSON(w, doc) }); err != nil {
		return Paths{}, err
	}
	return p, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
