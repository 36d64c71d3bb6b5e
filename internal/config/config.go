package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override, e.g. SPOTTER_SCAN_PERIOD.
const EnvPrefix = "SPOTTER"

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	Verbose   bool   `yaml:"verbose" envconfig:"VERBOSE"`
	UploadDir string `yaml:"upload_dir" envconfig:"UPLOAD_DIR"`

	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Scan      ScanConfig      `yaml:"scan" envconfig:"SCAN"`
	Reference ReferenceConfig `yaml:"reference" envconfig:"REFERENCE"`
	Extractor ExtractorConfig `yaml:"extractor" envconfig:"EXTRACTOR"`
	Video     VideoConfig     `yaml:"video" envconfig:"VIDEO"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" envconfig:"URL"`
}

// ScanConfig carries the sampling and matching knobs passed to the scanner.
type ScanConfig struct {
	Period        float64 `yaml:"period" envconfig:"PERIOD"`
	FallbackFPS   float64 `yaml:"fallback_fps" envconfig:"FALLBACK_FPS"`
	Tolerance     float64 `yaml:"tolerance" envconfig:"TOLERANCE"`
	Gap           float64 `yaml:"gap" envconfig:"GAP"`
	Metric        string  `yaml:"metric" envconfig:"METRIC"`
	Engines       int     `yaml:"engines" envconfig:"ENGINES"`
	MaxFrameWidth int     `yaml:"max_frame_width" envconfig:"MAX_FRAME_WIDTH"`
}

type ReferenceConfig struct {
	MaxSide int `yaml:"max_side" envconfig:"MAX_SIDE"`
}

type ExtractorConfig struct {
	Kind    string        `yaml:"kind" envconfig:"KIND"`
	URL     string        `yaml:"url" envconfig:"URL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Python  string        `yaml:"python" envconfig:"PYTHON"`
	Script  string        `yaml:"script" envconfig:"SCRIPT"`
	Model   string        `yaml:"model" envconfig:"MODEL"`
}

type VideoConfig struct {
	FFmpeg    string `yaml:"ffmpeg" envconfig:"FFMPEG"`
	FFprobe   string `yaml:"ffprobe" envconfig:"FFPROBE"`
	PixelMode string `yaml:"pixel_mode" envconfig:"PIXEL_MODE"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" envconfig:"ADDR"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" envconfig:"SCAN_TIMEOUT"`
}

// Load layers defaults, an optional YAML file and SPOTTER_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	// Only variables that are set override the file; there are no default tags.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Scan.Period <= 0:
		return fmt.Errorf("scan.period must be > 0, got %v", c.Scan.Period)
	case c.Scan.FallbackFPS <= 0:
		return fmt.Errorf("scan.fallback_fps must be > 0, got %v", c.Scan.FallbackFPS)
	case c.Scan.Tolerance <= 0:
		return fmt.Errorf("scan.tolerance must be > 0, got %v", c.Scan.Tolerance)
	case c.Scan.Gap <= 0:
		return fmt.Errorf("scan.gap must be > 0, got %v", c.Scan.Gap)
	case c.Scan.Engines < 1:
		return fmt.Errorf("scan.engines must be >= 1, got %d", c.Scan.Engines)
	case c.Scan.MaxFrameWidth < 0:
		return fmt.Errorf("scan.max_frame_width must be >= 0, got %d", c.Scan.MaxFrameWidth)
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		UploadDir: "./uploads",
		Scan: ScanConfig{
			Period:        0.5,
			FallbackFPS:   25,
			Tolerance:     0.6,
			Gap:           1.0,
			Metric:        "euclidean",
			Engines:       1,
			MaxFrameWidth: 360, // 0 keeps the source width
		},
		Reference: ReferenceConfig{
			MaxSide: 480,
		},
		Extractor: ExtractorConfig{
			Kind:    "http",
			URL:     "http://localhost:8000",
			Timeout: 60 * time.Second,
			Python:  "python3",
			Script:  "python/worker.py",
			Model:   "hog",
		},
		Video: VideoConfig{
			FFmpeg:    "ffmpeg",
			FFprobe:   "ffprobe",
			PixelMode: "mjpeg",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 512 << 20,
			ScanTimeout:    10 * time.Minute,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./spotter.yaml",
		"./spotter.yml",
		filepath.Join(os.Getenv("HOME"), ".spotter", "spotter.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
