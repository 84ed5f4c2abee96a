package biomarker

import (
	"math"
	"testing"

	"github.com/andresmejia3/pupilscan/internal/types"
)

// irisFace builds a landmark set with a square iris ring of half-width r (normalized)
// centered at (cx, cy), and an eye region centered on the same point.
func irisFace(cx, cy, r float64) *types.LandmarkSet {
	cfg := DefaultConfig()
	pts := map[int]types.Point{
		cfg.IrisRing[0]: {X: cx - r, Y: cy},
		cfg.IrisRing[1]: {X: cx, Y: cy - r},
		cfg.IrisRing[2]: {X: cx + r, Y: cy},
		cfg.IrisRing[3]: {X: cx, Y: cy + r},
	}
	for _, idx := range cfg.EyeRegion {
		pts[idx] = types.Point{X: cx, Y: cy}
	}
	return &types.LandmarkSet{Width: 100, Height: 100, Points: pts}
}

func TestExtract(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("Round iris", func(t *testing.T) {
		est := Extract(cfg, 1.25, irisFace(0.5, 0.4, 0.1))
		if est.Timestamp != 1.25 {
			t.Errorf("Timestamp = %v, want 1.25", est.Timestamp)
		}
		if est.PupilRadiusMM == nil {
			t.Fatal("Expected a pupil estimate, got nil")
		}
		// Radius is half the horizontal reference, so half the assumed iris diameter.
		if math.Abs(*est.PupilRadiusMM-cfg.IrisDiameterMM/2) > 1e-9 {
			t.Errorf("PupilRadiusMM = %v, want %v", *est.PupilRadiusMM, cfg.IrisDiameterMM/2)
		}
		if est.Gaze == nil || math.Abs(est.Gaze.X-0.5) > 1e-9 || math.Abs(est.Gaze.Y-0.4) > 1e-9 {
			t.Errorf("Gaze = %+v, want (0.5, 0.4)", est.Gaze)
		}
	})

	t.Run("Gaze uses raw normalized coordinates", func(t *testing.T) {
		lm := irisFace(0.5, 0.5, 0.05)
		lm.Width, lm.Height = 1920, 1080
		for i, idx := range cfg.EyeRegion {
			lm.Points[idx] = types.Point{X: float64(i) / 10, Y: 0.2}
		}
		est := Extract(cfg, 0, lm)
		if est.Gaze == nil || math.Abs(est.Gaze.X-0.25) > 1e-9 || math.Abs(est.Gaze.Y-0.2) > 1e-9 {
			t.Errorf("Gaze = %+v, want (0.25, 0.2)", est.Gaze)
		}
	})

	t.Run("No face", func(t *testing.T) {
		est := Extract(cfg, 0, nil)
		if est.PupilRadiusMM != nil || est.Gaze != nil {
			t.Errorf("Expected empty estimate, got %+v", est)
		}
	})

	t.Run("Incomplete iris ring", func(t *testing.T) {
		lm := irisFace(0.5, 0.5, 0.1)
		delete(lm.Points, cfg.IrisRing[3])
		est := Extract(cfg, 0, lm)
		if est.PupilRadiusMM != nil || est.Gaze != nil {
			t.Errorf("Expected empty estimate, got %+v", est)
		}
	})

	t.Run("Zero reference length", func(t *testing.T) {
		lm := irisFace(0.5, 0.5, 0.1)
		lm.Points[cfg.IrisRing[2]] = lm.Points[cfg.IrisRing[0]]
		est := Extract(cfg, 0, lm)
		if est.PupilRadiusMM != nil {
			t.Errorf("Expected nil pupil radius, got %v", *est.PupilRadiusMM)
		}
	})
}
