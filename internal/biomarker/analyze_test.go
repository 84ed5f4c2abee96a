package biomarker

import (
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/pupilscan/internal/types"
)

const epsilon = 1e-9

func mm(v float64) *float64 { return &v }

// estimates builds frames at 0.1s spacing from a pupil radius sequence with a fixed gaze.
func estimates(radii []float64) []FrameEstimate {
	out := make([]FrameEstimate, len(radii))
	for i, r := range radii {
		out[i] = FrameEstimate{
			Timestamp:     float64(i) * 0.1,
			PupilRadiusMM: mm(r),
			Gaze:          &types.Point{X: 0.5, Y: 0.5},
		}
	}
	return out
}

func TestAnalyzeConstrictionScenario(t *testing.T) {
	a := New(DefaultConfig(), nil)
	res, err := a.Analyze("Jane", estimates([]float64{4, 4, 4, 4, 4, 3.5, 3, 2.5, 3, 3.5}), 0.5)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	s := res.Summary
	if math.Abs(s.BaselineSize-4.0) > epsilon {
		t.Errorf("BaselineSize = %v, want 4.0", s.BaselineSize)
	}
	if math.Abs(s.Latency-0.2) > epsilon {
		t.Errorf("Latency = %v, want 0.2", s.Latency)
	}
	if math.Abs(s.ConstrictionAmplitude-1.5) > epsilon {
		t.Errorf("ConstrictionAmplitude = %v, want 1.5", s.ConstrictionAmplitude)
	}
	// Capture ends 0.4s after onset, before the PIPR window.
	if s.PIPR != nil {
		t.Errorf("PIPR = %v, want nil", *s.PIPR)
	}
	if res.Patient != "Jane" || len(res.Series.Rows) != 10 {
		t.Errorf("Unexpected result shape: patient %q, %d rows", res.Patient, len(res.Series.Rows))
	}
}

func TestAnalyzeNoConstriction(t *testing.T) {
	radii := make([]float64, 40) // 4 seconds
	for i := range radii {
		radii[i] = 4.0
	}
	res, err := New(DefaultConfig(), nil).Analyze("flat", estimates(radii), 0.5)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	s := res.Summary
	if math.Abs(s.BaselineSize-4.0) > epsilon {
		t.Errorf("BaselineSize = %v, want 4.0", s.BaselineSize)
	}
	if s.ConstrictionAmplitude != 0 {
		t.Errorf("ConstrictionAmplitude = %v, want 0", s.ConstrictionAmplitude)
	}
	if s.PIPR == nil || math.Abs(*s.PIPR) > epsilon {
		t.Errorf("PIPR = %v, want 0", s.PIPR)
	}
}

func TestAnalyzePIPRWindow(t *testing.T) {
	// Onset at 0.5s; window covers since_stimulus in [1.5, 3.0] i.e. elapsed 2.0..3.5.
	radii := make([]float64, 50)
	for i := range radii {
		switch {
		case i < 5:
			radii[i] = 5.0
		case i >= 20 && i <= 35:
			radii[i] = 4.0
		default:
			radii[i] = 3.0
		}
	}
	res, err := New(DefaultConfig(), nil).Analyze("pipr", estimates(radii), 0.5)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Summary.PIPR == nil {
		t.Fatal("Expected PIPR, got nil")
	}
	if math.Abs(*res.Summary.PIPR-1.0) > 1e-6 {
		t.Errorf("PIPR = %v, want 1.0", *res.Summary.PIPR)
	}
}

func TestAnalyzeFirstMinimumWins(t *testing.T) {
	// Two frames share the minimum radius; latency follows the earlier one.
	res, err := New(DefaultConfig(), nil).Analyze("tie", estimates([]float64{4, 4, 4, 4, 4, 3, 2, 3, 2, 3}), 0.45)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if math.Abs(res.Summary.Latency-0.15) > 1e-9 {
		t.Errorf("Latency = %v, want 0.15 (first minimum at t=0.6)", res.Summary.Latency)
	}
	if math.Abs(res.Summary.ConstrictionAmplitude-2) > epsilon {
		t.Errorf("ConstrictionAmplitude = %v, want 2", res.Summary.ConstrictionAmplitude)
	}
}

func TestAnalyzeDegenerate(t *testing.T) {
	t.Run("Dilation clamps amplitude", func(t *testing.T) {
		res, err := New(DefaultConfig(), nil).Analyze("d", estimates([]float64{3, 3, 3, 5, 6}), 0.25)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if res.Summary.ConstrictionAmplitude != 0 {
			t.Errorf("ConstrictionAmplitude = %v, want 0", res.Summary.ConstrictionAmplitude)
		}
		if len(res.Summary.Notes) == 0 {
			t.Error("Expected a diagnostic note for the negative amplitude")
		}
	})

	t.Run("Empty post-stimulus window", func(t *testing.T) {
		res, err := New(DefaultConfig(), nil).Analyze("late", estimates([]float64{4, 3, 2}), 10)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if res.Summary.Latency != 0 || res.Summary.ConstrictionAmplitude != 0 {
			t.Errorf("Latency/amplitude = %v/%v, want 0/0", res.Summary.Latency, res.Summary.ConstrictionAmplitude)
		}
	})

	t.Run("Stimulus before capture clamps to zero", func(t *testing.T) {
		// Nothing precedes an onset at elapsed 0, so there is no baseline.
		_, err := New(DefaultConfig(), nil).Analyze("early", estimates([]float64{4, 3, 2}), -1)
		if !errors.Is(err, ErrNoBaseline) {
			t.Errorf("Expected ErrNoBaseline, got %v", err)
		}
	})

	t.Run("No frames", func(t *testing.T) {
		_, err := New(DefaultConfig(), nil).Analyze("none", nil, 0)
		if !errors.Is(err, ErrNoFrames) {
			t.Errorf("Expected ErrNoFrames, got %v", err)
		}
	})

	t.Run("No valid pupil rows", func(t *testing.T) {
		ests := []FrameEstimate{{Timestamp: 0}, {Timestamp: 0.1}, {Timestamp: 0.2}}
		res, err := New(DefaultConfig(), nil).Analyze("blind", ests, 0.1)
		if !errors.Is(err, ErrNoValidPupil) {
			t.Errorf("Expected ErrNoValidPupil, got %v", err)
		}
		if res != nil {
			t.Errorf("Expected no result, got %+v", res)
		}
		if Reason(err) != "no_valid_pupil_data" {
			t.Errorf("Reason = %q", Reason(err))
		}
	})
}

func TestAnalyzeGaze(t *testing.T) {
	t.Run("All gaze missing", func(t *testing.T) {
		ests := estimates([]float64{4, 4, 4, 3, 3})
		for i := range ests {
			ests[i].Gaze = nil
		}
		res, err := New(DefaultConfig(), nil).Analyze("g", ests, 0.25)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		s := res.Summary
		if s.GazeSDX != nil || s.GazeSDY != nil {
			t.Errorf("Expected nil gaze SDs, got %v/%v", s.GazeSDX, s.GazeSDY)
		}
		if s.BCEA != 0 || s.Saccades != 0 {
			t.Errorf("BCEA/Saccades = %v/%v, want 0/0", s.BCEA, s.Saccades)
		}
	})

	t.Run("Correlated gaze", func(t *testing.T) {
		ests := estimates([]float64{4, 4, 4, 3, 3})
		xs := []float64{0.50, 0.51, 0.49, 0.52, 0.50}
		ys := []float64{0.40, 0.42, 0.41, 0.40, 0.43}
		for i := range ests {
			ests[i].Gaze = &types.Point{X: xs[i], Y: ys[i]}
		}
		res, err := New(DefaultConfig(), nil).Analyze("g", ests, 0.25)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		s := res.Summary
		sdx, _ := sampleStdDev(xs)
		sdy, _ := sampleStdDev(ys)
		rho, _ := pearson(xs, ys)
		want := 2 * math.Pi * sdx * sdy * math.Sqrt(1-rho*rho) * 0.393
		if s.BCEA <= 0 || math.Abs(s.BCEA-want) > epsilon {
			t.Errorf("BCEA = %v, want %v", s.BCEA, want)
		}
		// Steps of 0.01-0.03 over 0.1s are all above 0.02/s.
		if s.Saccades != 4 {
			t.Errorf("Saccades = %d, want 4", s.Saccades)
		}
	})

	t.Run("Constant gaze axis", func(t *testing.T) {
		ests := estimates([]float64{4, 4, 4, 3, 3})
		for i := range ests {
			ests[i].Gaze = &types.Point{X: 0.5, Y: 0.4 + float64(i)*0.001}
		}
		res, err := New(DefaultConfig(), nil).Analyze("g", ests, 0.25)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if res.Summary.BCEA != 0 {
			t.Errorf("BCEA = %v, want 0", res.Summary.BCEA)
		}
		if res.Summary.GazeSDX == nil || *res.Summary.GazeSDX != 0 {
			t.Errorf("GazeSDX = %v, want 0", res.Summary.GazeSDX)
		}
	})
}

func TestCountSaccades(t *testing.T) {
	p := func(x, y float64) *types.Point { return &types.Point{X: x, Y: y} }
	tests := []struct {
		name string
		rows []Row
		want int
	}{
		{"Empty", nil, 0},
		{"Single row", []Row{{Timestamp: 0, Gaze: p(0, 0)}}, 0},
		{
			name: "Slow drift",
			rows: []Row{{Timestamp: 0, Gaze: p(0, 0)}, {Timestamp: 1, Gaze: p(0.01, 0)}},
			want: 0,
		},
		{
			name: "Consecutive jumps each count",
			rows: []Row{
				{Timestamp: 0, Gaze: p(0, 0)},
				{Timestamp: 0.1, Gaze: p(0.1, 0)},
				{Timestamp: 0.2, Gaze: p(0.2, 0)},
			},
			want: 2,
		},
		{
			name: "Missing gaze breaks the pair",
			rows: []Row{
				{Timestamp: 0, Gaze: p(0, 0)},
				{Timestamp: 0.1},
				{Timestamp: 0.2, Gaze: p(0.5, 0)},
			},
			want: 0,
		},
		{
			name: "Duplicate timestamp with movement counts",
			rows: []Row{{Timestamp: 1, Gaze: p(0, 0)}, {Timestamp: 1, Gaze: p(0.5, 0.5)}},
			want: 1,
		},
		{
			name: "Duplicate timestamp without movement",
			rows: []Row{{Timestamp: 1, Gaze: p(0.5, 0.5)}, {Timestamp: 1, Gaze: p(0.5, 0.5)}},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countSaccades(tt.rows, 0.02); got != tt.want {
				t.Errorf("countSaccades() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSummaryRounded(t *testing.T) {
	s := Summary{
		Latency:               0.123456,
		ConstrictionAmplitude: 1.23456,
		BaselineSize:          4.5678,
		PIPR:                  mm(0.456),
		GazeSDX:               mm(0.0123456),
		BCEA:                  0.000123456,
		Saccades:              3,
	}
	r := s.Rounded()
	if r.Latency != 0.123 || r.ConstrictionAmplitude != 1.23 || r.BaselineSize != 4.57 {
		t.Errorf("Unexpected rounding: %+v", r)
	}
	if *r.PIPR != 0.46 || *r.GazeSDX != 0.01235 || r.GazeSDY != nil || r.BCEA != 0.00012 {
		t.Errorf("Unexpected rounding of optional fields: %+v", r)
	}
	if *s.PIPR != 0.456 {
		t.Error("Rounded must not modify the receiver")
	}

	// 0.125 and 0.375 are exact in binary, so these are true halves.
	halves := Summary{ConstrictionAmplitude: 0.125, BaselineSize: 0.375}.Rounded()
	if halves.ConstrictionAmplitude != 0.12 || halves.BaselineSize != 0.38 {
		t.Errorf("Halves should round to even, got %+v", halves)
	}
}
