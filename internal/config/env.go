package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/autocam/internal/log"
)

// Environment variables. The short names are the ones the tracker scripts used
// in their .env files.
const (
	EnvHighScene      = "CAM1"
	EnvLowScene       = "CAM2"
	EnvOBSHost        = "OBS_HOST"
	EnvOBSPort        = "OBS_PORT"
	EnvOBSPassword    = "OBS_PASSWORD"
	EnvDebounceTicks  = "CHANGE_DELAY"
	EnvCameraIndex    = "PRIMARY_CAMERA_INDEX"
	EnvBoundaryLow    = "AUTOCAM_BOUNDARY_LOW"
	EnvBoundaryHigh   = "AUTOCAM_BOUNDARY_HIGH"
	EnvTickPeriod     = "AUTOCAM_TICK_PERIOD"
	EnvAutoDetect     = "AUTOCAM_CAMERA_AUTODETECT"
	EnvSourceErrLimit = "AUTOCAM_SOURCE_ERROR_LIMIT"
	EnvHTTPAddr       = "AUTOCAM_HTTP_ADDR"
	EnvStorePath      = "AUTOCAM_DB_PATH"
	EnvHooksDir       = "AUTOCAM_HOOKS_DIR"
	EnvLogLevel       = "LOG_LEVEL"
)

// ApplyEnv overrides cfg with any environment variables that are set.
// Values that do not parse are logged and ignored.
func ApplyEnv(cfg *Config) {
	logger := log.WithComponent("config")

	cfg.Scenes.High = parseString(logger, EnvHighScene, cfg.Scenes.High)
	cfg.Scenes.Low = parseString(logger, EnvLowScene, cfg.Scenes.Low)
	cfg.OBS.Host = parseString(logger, EnvOBSHost, cfg.OBS.Host)
	cfg.OBS.Port = parseInt(logger, EnvOBSPort, cfg.OBS.Port)
	cfg.OBS.Password = parseString(logger, EnvOBSPassword, cfg.OBS.Password)
	cfg.Thresholds.DebounceTicks = parseInt(logger, EnvDebounceTicks, cfg.Thresholds.DebounceTicks)
	cfg.Thresholds.BoundaryLow = parseFloat(logger, EnvBoundaryLow, cfg.Thresholds.BoundaryLow)
	cfg.Thresholds.BoundaryHigh = parseFloat(logger, EnvBoundaryHigh, cfg.Thresholds.BoundaryHigh)
	cfg.TickPeriod = parseDuration(logger, EnvTickPeriod, cfg.TickPeriod)
	cfg.Camera.Index = parseInt(logger, EnvCameraIndex, cfg.Camera.Index)
	cfg.Camera.AutoDetect = parseBool(logger, EnvAutoDetect, cfg.Camera.AutoDetect)
	cfg.Source.ErrorLimit = parseInt(logger, EnvSourceErrLimit, cfg.Source.ErrorLimit)
	cfg.Server.Addr = parseString(logger, EnvHTTPAddr, cfg.Server.Addr)
	cfg.Store.Path = parseString(logger, EnvStorePath, cfg.Store.Path)
	cfg.Hooks.Dir = parseString(logger, EnvHooksDir, cfg.Hooks.Dir)
	cfg.Log.Level = parseString(logger, EnvLogLevel, cfg.Log.Level)
}

func lookup(logger zerolog.Logger, key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}

	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if strings.Contains(strings.ToLower(key), "password") {
		ev.Bool("sensitive", true)
	} else {
		ev.Str("value", value)
	}
	ev.Msg("using environment variable")
	return value, true
}

func parseString(logger zerolog.Logger, key, current string) string {
	if v, ok := lookup(logger, key); ok {
		return v
	}
	return current
}

func parseInt(logger zerolog.Logger, key string, current int) int {
	v, ok := lookup(logger, key)
	if !ok {
		return current
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Int("keeping", current).Msg("invalid integer in environment")
		return current
	}
	return i
}

func parseFloat(logger zerolog.Logger, key string, current float64) float64 {
	v, ok := lookup(logger, key)
	if !ok {
		return current
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Float64("keeping", current).Msg("invalid number in environment")
		return current
	}
	return f
}

func parseBool(logger zerolog.Logger, key string, current bool) bool {
	v, ok := lookup(logger, key)
	if !ok {
		return current
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Bool("keeping", current).Msg("invalid boolean in environment")
		return current
	}
	return b
}

func parseDuration(logger zerolog.Logger, key string, current time.Duration) time.Duration {
	v, ok := lookup(logger, key)
	if !ok {
		return current
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Dur("keeping", current).Msg("invalid duration in environment")
		return current
	}
	return d
}
