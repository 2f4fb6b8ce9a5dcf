package main

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/pillcast/internal/speech/engines"
	"github.com/dgnsrekt/pillcast/internal/vision"
)

var speechEngines = []string{"piper", "gtts", "mock"}

type appConfig struct {
	Debug  bool         `mapstructure:"debug"`
	Engine string       `mapstructure:"engine"`
	Volume float64      `mapstructure:"volume"`
	Style  string       `mapstructure:"style"`
	Width  uint         `mapstructure:"width"`
	Audio  audioConfig  `mapstructure:"audio"`
	Speech speechConfig `mapstructure:"speech"`
	Piper  piperConfig  `mapstructure:"piper"`
	GTTS   gttsConfig   `mapstructure:"gtts"`
	Cache  cacheConfig  `mapstructure:"cache"`
	Vision visionConfig `mapstructure:"vision"`
	Server serverConfig `mapstructure:"server"`
}

type audioConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	BufferSize int `mapstructure:"buffer_size"`
}

type speechConfig struct {
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
}

type piperConfig struct {
	Command     string               `mapstructure:"command"`
	LengthScale float64              `mapstructure:"length_scale"`
	Timeout     time.Duration        `mapstructure:"timeout"`
	Voices      []engines.PiperVoice `mapstructure:"voices"`
}

type gttsConfig struct {
	Language          string              `mapstructure:"language"`
	Slow              bool                `mapstructure:"slow"`
	Timeout           time.Duration       `mapstructure:"timeout"`
	RequestsPerMinute int                 `mapstructure:"requests_per_minute"`
	Voices            []engines.GTTSVoice `mapstructure:"voices"`
}

type cacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Dir        string        `mapstructure:"dir"`
	MemorySize string        `mapstructure:"memory_size"`
	DiskSize   string        `mapstructure:"disk_size"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type visionConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type serverConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxUpload       string        `mapstructure:"max_upload"`
	AnalyzeRate     float64       `mapstructure:"analyze_rate"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("engine", "piper")
	v.SetDefault("volume", 1.0)
	v.SetDefault("style", "auto")
	v.SetDefault("width", 0)

	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.buffer_size", 4096)
	v.SetDefault("speech.join_timeout", "5s")

	v.SetDefault("piper.command", "piper")
	v.SetDefault("piper.length_scale", 1.0)
	v.SetDefault("piper.timeout", "60s")
	v.SetDefault("piper.voices", []map[string]any{
		{"name": "en_US-ryan-medium", "model": "~/.local/share/piper/en_US-ryan-medium.onnx", "gender": "male"},
		{"name": "en_US-amy-medium", "model": "~/.local/share/piper/en_US-amy-medium.onnx", "gender": "female"},
	})

	v.SetDefault("gtts.language", "en")
	v.SetDefault("gtts.slow", false)
	v.SetDefault("gtts.timeout", "15s")
	v.SetDefault("gtts.requests_per_minute", 100)
	v.SetDefault("gtts.voices", []map[string]any{
		{"name": "en-us", "tld": "com", "gender": "female"},
	})

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.memory_size", "64MiB")
	v.SetDefault("cache.disk_size", "512MiB")
	v.SetDefault("cache.ttl", "168h")

	v.SetDefault("vision.model", vision.DefaultModel)
	v.SetDefault("vision.endpoint", vision.DefaultEndpoint)
	v.SetDefault("vision.timeout", "60s")
	_ = v.BindEnv("vision.api_key", "GOOGLE_API_KEY")

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.max_upload", "10MiB")
	v.SetDefault("server.analyze_rate", 10)
	v.SetDefault("server.shutdown_timeout", "10s")
}

// decodeConfig reads the effective configuration out of v and checks it.
func decodeConfig(v *viper.Viper) (appConfig, error) {
	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode configuration: %w", err)
	}
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg appConfig) error {
	var errs []error
	if !slices.Contains(speechEngines, cfg.Engine) {
		errs = append(errs, fmt.Errorf("engine must be one of %v, got %q", speechEngines, cfg.Engine))
	}
	if cfg.Volume < 0 || cfg.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", cfg.Volume))
	}
	if cfg.Speech.JoinTimeout <= 0 {
		errs = append(errs, fmt.Errorf("speech.join_timeout must be positive, got %s", cfg.Speech.JoinTimeout))
	}
	if s := cfg.Piper.LengthScale; s < 0.1 || s > 3.0 {
		errs = append(errs, fmt.Errorf("piper.length_scale must be between 0.1 and 3.0, got %.2f", s))
	}
	if cfg.GTTS.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("gtts.requests_per_minute must not be negative, got %d", cfg.GTTS.RequestsPerMinute))
	}
	if cfg.Server.AnalyzeRate < 0 {
		errs = append(errs, fmt.Errorf("server.analyze_rate must not be negative, got %.2f", cfg.Server.AnalyzeRate))
	}
	for key, size := range map[string]string{
		"cache.memory_size": cfg.Cache.MemorySize,
		"cache.disk_size":   cfg.Cache.DiskSize,
		"server.max_upload": cfg.Server.MaxUpload,
	} {
		if _, err := parseSize(size); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// parseSize parses human sizes such as "10MiB" or "512 MB".
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid size %q: must be positive", s)
	}
	return int64(n), nil //nolint:gosec
}
