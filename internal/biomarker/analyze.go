package biomarker

import (
	"io"

	"github.com/andresmejia3/pupilscan/internal/types"
	"github.com/sirupsen/logrus"
)

// Summary is the biomarker record of one successful administration.
type Summary struct {
	Latency               float64  `json:"latency"`
	ConstrictionAmplitude float64  `json:"constriction_amplitude"`
	BaselineSize          float64  `json:"baseline_size"`
	PIPR                  *float64 `json:"pipr"`
	GazeSDX               *float64 `json:"gaze_sd_x"`
	GazeSDY               *float64 `json:"gaze_sd_y"`
	BCEA                  float64  `json:"bcea"`
	Saccades              int      `json:"saccades"`
	// Notes lists values that were corrected to a safe default.
	Notes []string `json:"notes,omitempty"`
}

// Rounded returns the summary at reporting precision. Exact halves round to even.
func (s Summary) Rounded() Summary {
	r := s
	r.Latency = round(s.Latency, 3)
	r.ConstrictionAmplitude = round(s.ConstrictionAmplitude, 2)
	r.BaselineSize = round(s.BaselineSize, 2)
	r.PIPR = roundPtr(s.PIPR, 2)
	r.GazeSDX = roundPtr(s.GazeSDX, 5)
	r.GazeSDY = roundPtr(s.GazeSDY, 5)
	r.BCEA = round(s.BCEA, 5)
	return r
}

// Result is a successful analysis: the summary plus the series it was computed from.
type Result struct {
	Patient string
	Summary Summary
	Series  *Series
}

// Analyzer runs the biomarker pipeline under one protocol configuration.
// It holds no per-run state and may be shared between goroutines.
type Analyzer struct {
	cfg Config
	log logrus.FieldLogger
}

// New returns an Analyzer. A nil logger discards diagnostics.
func New(cfg Config, log logrus.FieldLogger) *Analyzer {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Analyzer{cfg: cfg, log: log}
}

// Config returns the protocol the analyzer was built with.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Extract converts one frame's landmarks using the analyzer's protocol.
func (a *Analyzer) Extract(timestamp float64, lm *types.LandmarkSet) FrameEstimate {
	return Extract(a.cfg, timestamp, lm)
}

// Analyze aligns the estimates to stimulusOnset and computes the summary.
// It returns ErrNoFrames, ErrNoValidPupil or ErrNoBaseline (wrapped) when the
// administration is unusable.
func (a *Analyzer) Analyze(patient string, estimates []FrameEstimate, stimulusOnset float64) (*Result, error) {
	log := a.log.WithField("patient", patient)

	series, err := BuildSeries(estimates, stimulusOnset)
	if err != nil {
		return nil, err
	}
	if series.Dropped > 0 {
		log.WithFields(logrus.Fields{"dropped": series.Dropped, "kept": len(series.Rows)}).Debug("frames without pupil estimate dropped")
	}

	d := &diagnostics{log: log}
	pupil, err := pupilMetrics(a.cfg, series, d)
	if err != nil {
		return nil, err
	}
	gaze := gazeMetrics(a.cfg, series, d)

	return &Result{
		Patient: patient,
		Series:  series,
		Summary: Summary{
			Latency:               pupil.Latency,
			ConstrictionAmplitude: pupil.ConstrictionAmplitude,
			BaselineSize:          pupil.Baseline,
			PIPR:                  pupil.PIPR,
			GazeSDX:               gaze.SDX,
			GazeSDY:               gaze.SDY,
			BCEA:                  gaze.BCEA,
			Saccades:              gaze.Saccades,
			Notes:                 d.notes,
		},
	}, nil
}

// diagnostics collects corrections applied to computed values.
type diagnostics struct {
	log   logrus.FieldLogger
	notes []string
}

func (d *diagnostics) warn(msg string, fields logrus.Fields) {
	d.notes = append(d.notes, msg)
	d.log.WithFields(fields).Warn(msg)
}
