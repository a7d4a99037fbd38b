// Package config loads ytfetch settings. Values are merged in order:
// defaults < TOML file < environment (.env included) < CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Delivery modes
const (
	DeliveryPersist = "persist"
	DeliveryInline  = "inline"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "YTFETCH_"

var bitratePattern = regexp.MustCompile(`^[1-9][0-9]*k$`)

// Duration is a time.Duration that reads from TOML strings like "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a time.ParseDuration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration like time.Duration.String.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all application configuration.
type Config struct {
	Addr             string   `toml:"addr"`
	DownloadDir      string   `toml:"download_dir"`
	Delivery         string   `toml:"delivery"`
	YtDlpPath        string   `toml:"ytdlp_path"`
	FFmpegPath       string   `toml:"ffmpeg_path"`
	AudioBitrate     string   `toml:"audio_bitrate"`
	ThumbnailTimeout Duration `toml:"thumbnail_timeout"`
	DownloadTimeout  Duration `toml:"download_timeout"`
	Retention        Duration `toml:"retention"`
	CleanupInterval  Duration `toml:"cleanup_interval"`
	AllowOrigins     []string `toml:"allow_origins"`
	Debug            bool     `toml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Addr:             "0.0.0.0:5000",
		DownloadDir:      "downloads",
		Delivery:         DeliveryPersist,
		AudioBitrate:     "192k",
		ThumbnailTimeout: Duration{10 * time.Second},
		CleanupInterval:  Duration{time.Hour},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ytfetch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ytfetch"), nil
}

// ConfigPath returns the path to the default config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the TOML file at path (or the default location when path is
// empty), then applies environment overrides. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = ConfigPath(); err != nil {
			path = ""
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (.env by default) into
// the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from YTFETCH_* environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"ADDR":          &c.Addr,
		"DOWNLOAD_DIR":  &c.DownloadDir,
		"DELIVERY":      &c.Delivery,
		"YTDLP_PATH":    &c.YtDlpPath,
		"FFMPEG_PATH":   &c.FFmpegPath,
		"AUDIO_BITRATE": &c.AudioBitrate,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"THUMBNAIL_TIMEOUT": &c.ThumbnailTimeout,
		"DOWNLOAD_TIMEOUT":  &c.DownloadTimeout,
		"RETENTION":         &c.Retention,
		"CLEANUP_INTERVAL":  &c.CleanupInterval,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
			}
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "ALLOW_ORIGINS"); ok {
		c.AllowOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowOrigins = append(c.AllowOrigins, o)
			}
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %sDEBUG: %w", EnvPrefix, err)
		}
		c.Debug = b
	}

	return nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download_dir cannot be empty")
	}
	switch c.Delivery {
	case DeliveryPersist, DeliveryInline:
	default:
		return fmt.Errorf("unsupported delivery %q (valid: persist, inline)", c.Delivery)
	}
	if !bitratePattern.MatchString(c.AudioBitrate) {
		return fmt.Errorf("invalid audio_bitrate %q (expected e.g. 192k)", c.AudioBitrate)
	}
	for name, d := range map[string]Duration{
		"thumbnail_timeout": c.ThumbnailTimeout,
		"download_timeout":  c.DownloadTimeout,
		"retention":         c.Retention,
		"cleanup_interval":  c.CleanupInterval,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if c.Retention.Duration > 0 && c.CleanupInterval.Duration <= 0 {
		return fmt.Errorf("cleanup_interval must be positive when retention is set")
	}
	return nil
}

// Inline reports whether files are returned in the response body.
func (c *Config) Inline() bool {
	return c.Delivery == DeliveryInline
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}
