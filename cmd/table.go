package cmd

import (
	"io"
	"os"
	"strconv"

	"github.com/andresmejia3/pupilscan/internal/biomarker"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// column is one table column. Numeric columns are right-aligned.
type column struct {
	Title   string
	Numeric bool
}

// renderTable draws rows under cols with rounded borders. Short rows are padded.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.Title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if c.Numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatOptional renders a metric that may be undefined.
func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatFloat(*v)
}

// renderSummary lays out one summary as a metric/value table.
func renderSummary(s biomarker.Summary) string {
	rows := [][]string{
		{"Latency (s)", formatFloat(s.Latency)},
		{"Constriction amplitude (mm)", formatFloat(s.ConstrictionAmplitude)},
		{"Baseline size (mm)", formatFloat(s.BaselineSize)},
		{"PIPR (mm)", formatOptional(s.PIPR)},
		{"Gaze SD x", formatOptional(s.GazeSDX)},
		{"Gaze SD y", formatOptional(s.GazeSDY)},
		{"BCEA", formatFloat(s.BCEA)},
		{"Saccades", strconv.Itoa(s.Saccades)},
	}
	return renderTable([]column{{Title: "Metric"}, {Title: "Value", Numeric: true}}, rows)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
