package biomarker

import (
	"errors"
	"fmt"
	"sort"

	"github.com/andresmejia3/pupilscan/internal/types"
)

// Run-level failures. An administration that hits one of these produces no
// summary and should be re-captured.
var (
	ErrNoFrames     = errors.New("no frames captured")
	ErrNoValidPupil = errors.New("no valid pupil data")
	ErrNoBaseline   = errors.New("no baseline available")
)

// Reason returns a stable identifier for a run-level failure, or "" if err is not one.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoFrames):
		return "no_frames"
	case errors.Is(err, ErrNoValidPupil):
		return "no_valid_pupil_data"
	case errors.Is(err, ErrNoBaseline):
		return "no_baseline"
	}
	return ""
}

// Row is one sample of the aligned series.
type Row struct {
	Timestamp     float64
	Elapsed       float64 // seconds since the first captured frame
	SinceStimulus float64 // negative before onset
	PupilRadiusMM float64
	Gaze          *types.Point
}

// Series is the time-aligned table both biomarker engines read.
// Only frames with a pupil estimate are kept.
type Series struct {
	Rows            []Row
	StimulusElapsed float64
	Dropped         int // frames without a pupil estimate
}

// BuildSeries orders the estimates by capture time, aligns them to the stimulus
// onset and drops frames without a pupil estimate.
func BuildSeries(estimates []FrameEstimate, stimulusOnset float64) (*Series, error) {
	if len(estimates) == 0 {
		return nil, ErrNoFrames
	}

	ordered := make([]FrameEstimate, len(estimates))
	copy(ordered, estimates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	start := ordered[0].Timestamp
	s := &Series{
		Rows:            make([]Row, 0, len(ordered)),
		StimulusElapsed: max(stimulusOnset-start, 0),
	}
	for _, e := range ordered {
		if e.PupilRadiusMM == nil {
			s.Dropped++
			continue
		}
		elapsed := e.Timestamp - start
		s.Rows = append(s.Rows, Row{
			Timestamp:     e.Timestamp,
			Elapsed:       elapsed,
			SinceStimulus: elapsed - s.StimulusElapsed,
			PupilRadiusMM: *e.PupilRadiusMM,
			Gaze:          e.Gaze,
		})
	}

	if len(s.Rows) == 0 {
		return nil, fmt.Errorf("%w: no pupil detected in any of %d frames", ErrNoValidPupil, len(ordered))
	}
	return s, nil
}
