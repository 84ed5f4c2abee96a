package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pupilscan.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.toml")} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", path, err)
		}
		if cfg.Protocol.IrisDiameterMM != 11.5 || cfg.Protocol.SaccadeVelocity != 0.02 {
			t.Errorf("Unexpected protocol defaults: %+v", cfg.Protocol)
		}
		if cfg.Worker.Engines != 1 || cfg.Output.Dir != "results" {
			t.Errorf("Unexpected defaults: %+v", cfg)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[protocol]
iris_diameter_mm = 12.0
pipr_window_start = 2.0
pipr_window_end = 4.5

[worker]
engines = 4

[log]
level = " DEBUG "
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Protocol.IrisDiameterMM != 12.0 || cfg.Protocol.PIPRWindowEnd != 4.5 {
		t.Errorf("Protocol overrides not applied: %+v", cfg.Protocol)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Protocol.BCEAScale != 0.393 || len(cfg.Protocol.IrisRing) != 4 {
		t.Errorf("Defaults lost: %+v", cfg.Protocol)
	}
	if cfg.Worker.Engines != 4 || cfg.Worker.ReadTimeout != "30s" {
		t.Errorf("Worker overrides not applied: %+v", cfg.Worker)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"Bad TOML", "[protocol\n", "parse config"},
		{"Negative diameter", "[protocol]\niris_diameter_mm = -1\n", "IrisDiameterMM"},
		{"Short iris ring", "[protocol]\niris_ring = [474, 475]\n", "IrisRing"},
		{"Inverted PIPR window", "[protocol]\npipr_window_start = 3.0\npipr_window_end = 1.0\n", "PIPRWindowEnd"},
		{"Zero engines", "[worker]\nengines = 0\n", "Engines"},
		{"Bad timeout", "[worker]\nread_timeout = \"soon\"\n", "ReadTimeout"},
		{"Unknown log level", "[log]\nlevel = \"loud\"\n", "Level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error %q does not mention %q", err, tt.want)
			}
		})
	}
}
