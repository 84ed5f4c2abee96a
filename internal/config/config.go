// Package config loads pupilscan's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/pupilscan/internal/biomarker"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Worker configures the landmark detector processes.
type Worker struct {
	Script      string `toml:"script" validate:"required"`
	Engines     int    `toml:"engines" validate:"gte=1"`
	ReadTimeout string `toml:"read_timeout" validate:"required"`
}

// Output configures where exported tables and summaries are written.
type Output struct {
	Dir string `toml:"dir" validate:"required"`
}

// Log configures the diagnostic logger.
type Log struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
	Dir   string `toml:"dir"`
}

// Config is the full application configuration.
type Config struct {
	Protocol biomarker.Config `toml:"protocol"`
	Worker   Worker           `toml:"worker"`
	Output   Output           `toml:"output"`
	Log      Log              `toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Protocol: biomarker.DefaultConfig(),
		Worker: Worker{
			Script:      "python/landmark_worker.py",
			Engines:     1,
			ReadTimeout: "30s",
		},
		Output: Output{Dir: "results"},
		Log:    Log{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	return cfg, cfg.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section, reporting all failing fields at once.
func (c Config) Validate() error {
	var msgs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
		}
	}
	if _, err := time.ParseDuration(c.Worker.ReadTimeout); err != nil {
		msgs = append(msgs, fmt.Sprintf("Config.Worker.ReadTimeout: %v", err))
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
