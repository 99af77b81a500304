package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate clamps every numeric field into its documented range and resets
// unknown enum values to their defaults. Corrections are returned as errors
// and logged as warnings; none of them prevent startup. After Validate
// returns, the config cannot hold a value any component would reject.
func (c *Config) Validate() []error {
	var errs []error

	clampInt := func(name string, v *int, min, max int) {
		if *v < min {
			errs = append(errs, fmt.Errorf("%s %d is below minimum %d, clamping", name, *v, min))
			*v = min
		} else if *v > max {
			errs = append(errs, fmt.Errorf("%s %d exceeds maximum %d, clamping", name, *v, max))
			*v = max
		}
	}
	clampFloat := func(name string, v *float64, min, max float64) {
		if *v < min {
			errs = append(errs, fmt.Errorf("%s %g is below minimum %g, clamping", name, *v, min))
			*v = min
		} else if *v > max {
			errs = append(errs, fmt.Errorf("%s %g exceeds maximum %g, clamping", name, *v, max))
			*v = max
		}
	}

	clampInt("target_fps", &c.TargetFPS, 15, 60)
	clampFloat("capture_scale", &c.CaptureScale, 0.25, 1.0)
	clampFloat("mic_volume", &c.MicVolume, 0, 10)
	clampInt("max_duration_minutes", &c.MaxDurationMinutes, 1, 120)
	clampInt("window_retry_interval_seconds", &c.WindowRetryIntervalSeconds, 1, 60)
	clampInt("log_max_size_mb", &c.LogMaxSizeMB, 1, 500)
	clampInt("log_max_backups", &c.LogMaxBackups, 1, 20)

	if _, ok := qualityTiers[c.VideoQuality]; !ok {
		errs = append(errs, fmt.Errorf("video_quality %q is not valid (use low, medium, high), using medium", c.VideoQuality))
		c.VideoQuality = "medium"
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), using info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json), using text", c.LogFormat))
		c.LogFormat = "text"
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
