// Package config loads server configuration from defaults, an optional YAML
// file, command-line flags and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chicogong/media-compositor/pkg/storage"
)

// Config is the complete server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Render  RenderConfig  `yaml:"render"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type RenderConfig struct {
	// Output resolution every composition is rendered at
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// DefaultDuration sizes the canvas of compositions without clips, in seconds
	DefaultDuration float64 `yaml:"default_duration"`
	FontFamily      string  `yaml:"font_family"`

	FFmpegPath  string        `yaml:"ffmpeg_path"`
	FFprobePath string        `yaml:"ffprobe_path"`
	Timeout     time.Duration `yaml:"timeout"`

	// StagingDir holds one workspace per request; KeepStaging leaves them behind
	StagingDir  string `yaml:"staging_dir"`
	KeepStaging bool   `yaml:"keep_staging"`

	// MaxUploadBytes bounds a whole multipart request body; zero means unlimited
	MaxUploadBytes   int64 `yaml:"max_upload_bytes"`
	MaxDownloadBytes int64 `yaml:"max_download_bytes"`

	// AllowPrivateNetworks disables the SSRF check on remote sources
	AllowPrivateNetworks bool `yaml:"allow_private_networks"`
}

type StorageConfig struct {
	// LocalRoot is the directory file:// sources and outputs are confined
	// to. Empty disables file:// in requests.
	LocalRoot string `yaml:"local_root"`

	// S3 enables s3:// sources and outputs
	S3Enabled bool              `yaml:"s3_enabled"`
	S3        storage.S3Options `yaml:"s3"`
}

type AuthConfig struct {
	Enabled   bool           `yaml:"enabled"`
	JWTSecret string         `yaml:"jwt_secret"`
	TokenTTL  time.Duration  `yaml:"token_ttl"`
	APIKeys   []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig seeds one API key at startup
type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

type StoreConfig struct {
	MaxRecords int `yaml:"max_records"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     2 * time.Minute,
			WriteTimeout:    15 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Render: RenderConfig{
			Width:            1920,
			Height:           1080,
			DefaultDuration:  10,
			FontFamily:       "Arial",
			FFmpegPath:       "ffmpeg",
			FFprobePath:      "ffprobe",
			Timeout:          10 * time.Minute,
			MaxUploadBytes:   1 << 30,
			MaxDownloadBytes: 1 << 30,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			MaxRecords: 1000,
		},
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		errs = append(errs, fmt.Errorf("render resolution must be positive, got %dx%d", c.Render.Width, c.Render.Height))
	}
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("render resolution must be even for yuv420p output, got %dx%d", c.Render.Width, c.Render.Height))
	}
	if c.Render.DefaultDuration <= 0 {
		errs = append(errs, fmt.Errorf("render.default_duration must be positive"))
	}
	if c.Render.FFmpegPath == "" {
		errs = append(errs, fmt.Errorf("render.ffmpeg_path is required"))
	}
	if c.Render.Timeout < 0 {
		errs = append(errs, fmt.Errorf("render.timeout cannot be negative"))
	}
	if c.Render.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("render.max_upload_bytes cannot be negative"))
	}
	if c.Storage.LocalRoot != "" && !filepath.IsAbs(c.Storage.LocalRoot) {
		errs = append(errs, fmt.Errorf("storage.local_root must be an absolute path, got %q", c.Storage.LocalRoot))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth is enabled but neither auth.jwt_secret nor auth.api_keys is set"))
	}
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" || k.UserID == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key and user_id are required", i))
		}
	}
	if c.Store.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("store.max_records cannot be negative"))
	}

	return errors.Join(errs...)
}
