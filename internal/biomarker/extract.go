package biomarker

import (
	"math"

	"github.com/andresmejia3/pupilscan/internal/types"
)

// FrameEstimate is the geometry derived from a single frame.
// PupilRadiusMM and Gaze are nil when the frame had no usable face.
type FrameEstimate struct {
	Timestamp     float64
	PupilRadiusMM *float64
	Gaze          *types.Point
}

// Extract converts one frame's landmarks into a pupil radius and gaze estimate.
// It never fails: missing faces or degenerate iris geometry yield nil fields.
func Extract(cfg Config, timestamp float64, lm *types.LandmarkSet) FrameEstimate {
	est := FrameEstimate{Timestamp: timestamp}

	ring := lm.Subset(cfg.IrisRing)
	if len(ring) < 4 {
		return est
	}

	w, h := float64(lm.Width), float64(lm.Height)
	px := make([]types.Point, len(ring))
	var cx, cy float64
	for i, p := range ring {
		px[i] = types.Point{X: p.X * w, Y: p.Y * h}
		cx += px[i].X
		cy += px[i].Y
	}
	cx /= float64(len(px))
	cy /= float64(len(px))

	var radius float64
	for _, p := range px {
		radius = math.Max(radius, math.Hypot(p.X-cx, p.Y-cy))
	}

	est.Gaze = centroid(lm.Subset(cfg.EyeRegion))

	refPx := math.Hypot(px[0].X-px[2].X, px[0].Y-px[2].Y)
	if refPx > 0 {
		mm := radius * (cfg.IrisDiameterMM / refPx)
		est.PupilRadiusMM = &mm
	}
	return est
}

// centroid averages normalized coordinates; nil for an empty set.
func centroid(pts []types.Point) *types.Point {
	if len(pts) == 0 {
		return nil
	}
	var c types.Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(pts))
	c.Y /= float64(len(pts))
	return &c
}
