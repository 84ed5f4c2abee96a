package biomarker

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// PupilMetrics are the light reflex biomarkers of one administration.
type PupilMetrics struct {
	Baseline              float64
	Latency               float64
	ConstrictionAmplitude float64
	PIPR                  *float64
}

func pupilMetrics(cfg Config, s *Series, d *diagnostics) (PupilMetrics, error) {
	var before, window []float64
	minIdx := -1
	for i, r := range s.Rows {
		if r.SinceStimulus < 0 {
			before = append(before, r.PupilRadiusMM)
		}
		if r.SinceStimulus > 0 && (minIdx < 0 || r.PupilRadiusMM < s.Rows[minIdx].PupilRadiusMM) {
			minIdx = i
		}
		if r.SinceStimulus >= cfg.PIPRWindowStart && r.SinceStimulus <= cfg.PIPRWindowEnd {
			window = append(window, r.PupilRadiusMM)
		}
	}

	baseline, ok := mean(before)
	if !ok {
		return PupilMetrics{}, fmt.Errorf("%w: no pupil samples before stimulus onset at %.3fs", ErrNoBaseline, s.StimulusElapsed)
	}
	m := PupilMetrics{Baseline: baseline}

	if minIdx < 0 {
		d.warn("no frames after stimulus, latency and amplitude set to 0", nil)
	} else {
		lowest := s.Rows[minIdx]
		m.Latency = max(lowest.Elapsed-s.StimulusElapsed, 0)
		m.ConstrictionAmplitude = baseline - lowest.PupilRadiusMM
		if m.ConstrictionAmplitude < 0 {
			d.warn("negative constriction amplitude, no constriction detected", logrus.Fields{"value": m.ConstrictionAmplitude})
			m.ConstrictionAmplitude = 0
		}
	}

	if avg, ok := mean(window); ok {
		pipr := baseline - avg
		m.PIPR = &pipr
	}
	return m, nil
}
