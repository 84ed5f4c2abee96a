package biomarker

import (
	"math"

	"github.com/sirupsen/logrus"
)

// GazeMetrics describe fixation stability over the administration.
type GazeMetrics struct {
	SDX      *float64
	SDY      *float64
	BCEA     float64
	Saccades int
}

// gazeMetrics runs over the pupil-filtered rows. Rows without a gaze estimate
// are skipped by every reducer.
func gazeMetrics(cfg Config, s *Series, d *diagnostics) GazeMetrics {
	var xs, ys []float64
	for _, r := range s.Rows {
		if r.Gaze != nil {
			xs = append(xs, r.Gaze.X)
			ys = append(ys, r.Gaze.Y)
		}
	}

	var m GazeMetrics
	if sd, ok := sampleStdDev(xs); ok {
		m.SDX = &sd
	}
	if sd, ok := sampleStdDev(ys); ok {
		m.SDY = &sd
	}

	if m.SDX != nil && m.SDY != nil && *m.SDX > 0 && *m.SDY > 0 {
		rho, err := pearson(xs, ys)
		if err != nil {
			d.warn("gaze correlation failed, BCEA set to 0", logrus.Fields{"error": err})
		} else {
			m.BCEA = 2 * math.Pi * *m.SDX * *m.SDY * math.Sqrt(max(1-rho*rho, 0)) * cfg.BCEAScale
		}
	}

	m.Saccades = countSaccades(s.Rows, cfg.SaccadeVelocity)
	return m
}

// countSaccades counts consecutive row pairs whose gaze speed exceeds threshold.
// Every crossing counts; there is no debouncing. Pairs with a missing gaze are
// skipped. A move between frames sharing a timestamp has unbounded speed and
// counts; no move at equal timestamps does not.
func countSaccades(rows []Row, threshold float64) int {
	n := 0
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.Gaze == nil || cur.Gaze == nil {
			continue
		}
		dist := math.Hypot(cur.Gaze.X-prev.Gaze.X, cur.Gaze.Y-prev.Gaze.Y)
		dt := cur.Timestamp - prev.Timestamp
		if dt <= 0 {
			if dist > 0 {
				n++
			}
			continue
		}
		if dist/dt > threshold {
			n++
		}
	}
	return n
}
