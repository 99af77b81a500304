package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds every recorder option. Load clamps all numeric fields, so a
// Config obtained from Load or Default is always safe to hand to components.
type Config struct {
	OutputFolder               string  `mapstructure:"output_folder"`
	VideoQuality               string  `mapstructure:"video_quality"`
	TargetFPS                  int     `mapstructure:"target_fps"`
	CaptureScale               float64 `mapstructure:"capture_scale"`
	CaptureAudio               bool    `mapstructure:"capture_audio"`
	CaptureMicrophone          bool    `mapstructure:"capture_microphone"`
	MicVolume                  float64 `mapstructure:"mic_volume"`
	MaxDurationMinutes         int     `mapstructure:"max_duration_minutes"`
	WindowTitlePattern         string  `mapstructure:"window_title_pattern"`
	WindowRetryIntervalSeconds int     `mapstructure:"window_retry_interval_seconds"`
	EncoderPath                string  `mapstructure:"encoder_path"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// QualityTier maps a video_quality name to encoder parameters. CRF and the
// preset describe the final output quality; the AAC bitrate is used when the
// sidecar audio is muxed into the container.
type QualityTier struct {
	CRF          int
	Preset       string
	AudioBitrate string
}

var qualityTiers = map[string]QualityTier{
	"low":    {CRF: 28, Preset: "fast", AudioBitrate: "96k"},
	"medium": {CRF: 23, Preset: "medium", AudioBitrate: "128k"},
	"high":   {CRF: 18, Preset: "slow", AudioBitrate: "192k"},
}

// Tier resolves the configured quality name. Validate guarantees the name is
// known, so the fallback only triggers for hand-built configs.
func (c *Config) Tier() QualityTier {
	if t, ok := qualityTiers[c.VideoQuality]; ok {
		return t
	}
	return qualityTiers["medium"]
}

func Default() *Config {
	return &Config{
		OutputFolder:               filepath.Join(dataDir(), "captures"),
		VideoQuality:               "medium",
		TargetFPS:                  30,
		CaptureScale:               1.0,
		CaptureAudio:               true,
		CaptureMicrophone:          false,
		MicVolume:                  1.0,
		MaxDurationMinutes:         30,
		WindowRetryIntervalSeconds: 5,
		LogLevel:                   "info",
		LogFormat:                  "text",
		LogMaxSizeMB:               20,
		LogMaxBackups:              3,
	}
}

// Load reads the config file (explicit path, or reelcap.yaml in the config
// dir / cwd), applies REELCAP_* env overrides, and clamps the result.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("reelcap")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("REELCAP")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.Validate()
	return cfg, nil
}

func Save(cfg *Config, cfgFile string) error {
	viper.Set("output_folder", cfg.OutputFolder)
	viper.Set("video_quality", cfg.VideoQuality)
	viper.Set("target_fps", cfg.TargetFPS)
	viper.Set("capture_scale", cfg.CaptureScale)
	viper.Set("capture_audio", cfg.CaptureAudio)
	viper.Set("capture_microphone", cfg.CaptureMicrophone)
	viper.Set("mic_volume", cfg.MicVolume)
	viper.Set("max_duration_minutes", cfg.MaxDurationMinutes)
	viper.Set("window_title_pattern", cfg.WindowTitlePattern)
	viper.Set("window_retry_interval_seconds", cfg.WindowRetryIntervalSeconds)
	viper.Set("encoder_path", cfg.EncoderPath)

	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir(), "reelcap.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0700); err != nil {
		return err
	}
	return viper.WriteConfigAs(cfgPath)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Reelcap")
	case "darwin":
		return "/Library/Application Support/Reelcap"
	default:
		return "/etc/reelcap"
	}
}

func dataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Reelcap")
	}
	return "."
}
