// Package biomarker turns per-frame face-mesh landmarks captured around a light
// stimulus into pupillary light reflex and gaze stability biomarkers.
package biomarker

// Config holds the protocol parameters of one test administration.
type Config struct {
	// IrisDiameterMM is the assumed adult iris diameter used to convert pixels to millimeters.
	IrisDiameterMM float64 `toml:"iris_diameter_mm" validate:"gt=0"`
	// IrisRing lists the 4 landmark indices around the iris. The first and third
	// points span the horizontal reference length.
	IrisRing []int `toml:"iris_ring" validate:"len=4"`
	// EyeRegion lists the landmarks whose centroid is the gaze proxy.
	EyeRegion []int `toml:"eye_region" validate:"min=1"`

	// PIPR window bounds, in seconds since stimulus onset (inclusive).
	PIPRWindowStart float64 `toml:"pipr_window_start" validate:"gte=0"`
	PIPRWindowEnd   float64 `toml:"pipr_window_end" validate:"gtfield=PIPRWindowStart"`

	// SaccadeVelocity is the gaze speed, in normalized units per second, above
	// which a frame-to-frame step counts as a saccade.
	SaccadeVelocity float64 `toml:"saccade_velocity" validate:"gt=0"`
	// BCEAScale is k for a 1-SD probability ellipse.
	BCEAScale float64 `toml:"bcea_scale" validate:"gt=0"`

	CaptureDuration float64 `toml:"capture_duration" validate:"gt=0"`
	StimulusDelay   float64 `toml:"stimulus_delay" validate:"gte=0,ltfield=CaptureDuration"`
}

// DefaultConfig returns the 6 second capture / 1.5 second flash delay protocol.
func DefaultConfig() Config {
	return Config{
		IrisDiameterMM:  11.5,
		IrisRing:        []int{474, 475, 476, 477},
		EyeRegion:       []int{468, 469, 470, 471, 472, 473},
		PIPRWindowStart: 1.5,
		PIPRWindowEnd:   3.0,
		SaccadeVelocity: 0.02,
		BCEAScale:       0.393,
		CaptureDuration: 6.0,
		StimulusDelay:   1.5,
	}
}
