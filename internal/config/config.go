// Package config loads autocam configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/autocam/internal/scene"
)

// Config represents the complete autocam configuration.
type Config struct {
	Scenes     ScenesConfig     `yaml:"scenes"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	TickPeriod time.Duration    `yaml:"tick_period"`
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	OBS        OBSConfig        `yaml:"obs"`
	Source     SourceConfig     `yaml:"source"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Hooks      HooksConfig      `yaml:"hooks"`
	Log        LogConfig        `yaml:"log"`
}

// ScenesConfig names the OBS scenes on each side of the dead zone.
type ScenesConfig struct {
	High string `yaml:"high"` // face at or right of boundary_high
	Low  string `yaml:"low"`  // face left of boundary_low
}

// ThresholdsConfig holds the hysteresis bands and debounce count.
type ThresholdsConfig struct {
	BoundaryLow   float64 `yaml:"boundary_low"`
	BoundaryHigh  float64 `yaml:"boundary_high"`
	DebounceTicks int     `yaml:"debounce_ticks"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Index      int  `yaml:"index"`
	AutoDetect bool `yaml:"auto_detect"`
	FPS        int  `yaml:"fps"`
}

// DetectorConfig locates the face mesh helper.
type DetectorConfig struct {
	Script        string  `yaml:"script"` // empty searches the usual locations
	Python        string  `yaml:"python"` // empty prefers a venv, then python3
	MinConfidence float64 `yaml:"min_confidence"`
}

// OBSConfig contains obs-websocket connection settings.
type OBSConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SourceConfig controls how source failures escalate.
type SourceConfig struct {
	// ErrorLimit is the number of consecutive failed ticks that stops the
	// loop. Zero never stops.
	ErrorLimit int `yaml:"error_limit"`
}

// ServerConfig configures the status HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig configures the transition journal. An empty Path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Retain is how many transitions are kept when the journal is pruned at
	// startup. Zero keeps everything.
	Retain int `yaml:"retain"`
}

// HooksConfig locates transition hooks. An empty Dir disables them.
type HooksConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing else is set.
// Boundaries match the asymmetric bands the tracker was tuned with.
func Default() Config {
	return Config{
		Scenes: ScenesConfig{
			High: "CAM1",
			Low:  "CAM2",
		},
		Thresholds: ThresholdsConfig{
			BoundaryLow:   0.395,
			BoundaryHigh:  0.435,
			DebounceTicks: 2,
		},
		TickPeriod: 100 * time.Millisecond,
		Camera: CameraConfig{
			Index:      1,
			AutoDetect: true,
			FPS:        30,
		},
		Detector: DetectorConfig{
			MinConfidence: 0.5,
		},
		OBS: OBSConfig{
			Host:    "localhost",
			Port:    4455,
			Timeout: 5 * time.Second,
		},
		Source: SourceConfig{
			ErrorLimit: 50,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Store: StoreConfig{
			Path:   defaultStorePath(),
			Retain: 10000,
		},
		Hooks: HooksConfig{
			Dir:     defaultHooksDir(),
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".autocam", "autocam.db")
}

func defaultHooksDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".autocam", "hooks")
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the process cannot run with.
func Validate(cfg Config) error {
	var errs []error

	if err := cfg.SceneSet().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.SceneThresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.TickPeriod <= 0 {
		errs = append(errs, fmt.Errorf("tick_period must be > 0, got %v", cfg.TickPeriod))
	}
	if cfg.Camera.Index < 0 {
		errs = append(errs, fmt.Errorf("camera.index must be >= 0, got %d", cfg.Camera.Index))
	}
	if cfg.OBS.Host == "" {
		errs = append(errs, errors.New("obs.host is required"))
	}
	if cfg.OBS.Port <= 0 || cfg.OBS.Port > 65535 {
		errs = append(errs, fmt.Errorf("obs.port must be in 1..65535, got %d", cfg.OBS.Port))
	}
	if cfg.OBS.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("obs.timeout must be > 0, got %v", cfg.OBS.Timeout))
	}
	if cfg.Source.ErrorLimit < 0 {
		errs = append(errs, fmt.Errorf("source.error_limit must be >= 0, got %d", cfg.Source.ErrorLimit))
	}
	if cfg.Store.Retain < 0 {
		errs = append(errs, fmt.Errorf("store.retain must be >= 0, got %d", cfg.Store.Retain))
	}
	if cfg.Hooks.Dir != "" && cfg.Hooks.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("hooks.timeout must be > 0, got %v", cfg.Hooks.Timeout))
	}

	return errors.Join(errs...)
}

// SceneSet returns the scene pair for the decision engine.
func (c Config) SceneSet() scene.Scenes {
	return scene.Scenes{
		Low:  scene.ID(c.Scenes.Low),
		High: scene.ID(c.Scenes.High),
	}
}

// SceneThresholds returns the thresholds for the decision engine.
func (c Config) SceneThresholds() scene.Thresholds {
	return scene.Thresholds{
		BoundaryLow:   c.Thresholds.BoundaryLow,
		BoundaryHigh:  c.Thresholds.BoundaryHigh,
		DebounceTicks: c.Thresholds.DebounceTicks,
	}
}

// DebounceDuration is the wall time covered by the debounce count at the
// configured tick period.
func (c Config) DebounceDuration() time.Duration {
	return c.SceneThresholds().DebounceDuration(c.TickPeriod)
}
