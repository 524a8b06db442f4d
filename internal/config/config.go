// Package config loads the server configuration: a YAML file, with .env and
// LOOPCAST_* environment variables layered on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when neither -config nor LOOPCAST_CONFIG is set.
const DefaultPath = "loopcast.yaml"

// Store backends.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config is the server configuration.
type Config struct {
	Address string `yaml:"address"`
	Port    string `yaml:"port"`
	Env     string `yaml:"env"` // dev | prod

	DataDir    string `yaml:"data_dir"`
	FFmpegPath string `yaml:"ffmpeg_path"`

	Store        string `yaml:"store"` // file | redis
	RedisAddress string `yaml:"redis_address"`
	RedisDB      int    `yaml:"redis_db"`

	RestartDelay   time.Duration `yaml:"restart_delay"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
	MaxRestarts    int           `yaml:"max_restarts"`
	RestartBackoff bool          `yaml:"restart_backoff"`

	LogLines      int    `yaml:"log_lines"`
	StreamLogFile string `yaml:"stream_log_file"` // relative to data_dir; empty disables the mirror
	WatchConfig   bool   `yaml:"watch_config"`
	ReapOrphans   bool   `yaml:"reap_orphans"`
	CheckMedia    bool   `yaml:"check_media"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() Config {
	return Config{
		Port:          "3000",
		Env:           "prod",
		DataDir:       ".",
		FFmpegPath:    "ffmpeg",
		Store:         StoreFile,
		RedisAddress:  "127.0.0.1:6379",
		RestartDelay:  5 * time.Second,
		StopTimeout:   2 * time.Second,
		LogLines:      100,
		StreamLogFile: filepath.Join("logs", "stream.log"),
		ReapOrphans:   true,
		CheckMedia:    true,
	}
}

// IsDev reports whether the server runs in development mode.
func (c Config) IsDev() bool { return c.Env == "dev" }

// ListenAddr is the HTTP listen address.
func (c Config) ListenAddr() string { return c.Address + ":" + c.Port }

// Paths under the data directory.
func (c Config) ConfigDir() string     { return filepath.Join(c.DataDir, "config") }
func (c Config) MediaDir() string      { return filepath.Join(c.DataDir, "media") }
func (c Config) LogsDir() string       { return filepath.Join(c.DataDir, "logs") }
func (c Config) TempDir() string       { return filepath.Join(c.DataDir, "temp") }
func (c Config) ManifestPath() string  { return filepath.Join(c.TempDir(), "playlist.txt") }
func (c Config) ChangelogPath() string { return filepath.Join(c.DataDir, "CHANGELOG.md") }

// StreamLogPath returns the stream log mirror path, or "" when disabled.
func (c Config) StreamLogPath() string {
	if c.StreamLogFile == "" || filepath.IsAbs(c.StreamLogFile) {
		return c.StreamLogFile
	}
	return filepath.Join(c.DataDir, c.StreamLogFile)
}

// Load reads dotenv files (missing ones are ignored), then the YAML file at
// path, then applies environment overrides. An empty path resolves to
// LOOPCAST_CONFIG or DefaultPath; a missing default file is not an error.
func Load(path string, dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, p := range dotenv {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = getEnv("LOOPCAST_CONFIG", "")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Address = getEnv("LOOPCAST_ADDR", c.Address)
	c.Port = getEnv("LOOPCAST_PORT", c.Port)
	c.Env = getEnv("LOOPCAST_ENV", c.Env)
	c.DataDir = getEnv("LOOPCAST_DATA_DIR", c.DataDir)
	c.FFmpegPath = getEnv("LOOPCAST_FFMPEG", c.FFmpegPath)
	c.Store = getEnv("LOOPCAST_STORE", c.Store)
	c.RedisAddress = getEnv("LOOPCAST_REDIS_ADDR", c.RedisAddress)

	if s := os.Getenv("LOOPCAST_RESTART_DELAY"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("LOOPCAST_RESTART_DELAY: %w", err)
		}
		c.RestartDelay = d
	}
	if s := os.Getenv("LOOPCAST_MAX_RESTARTS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("LOOPCAST_MAX_RESTARTS: %w", err)
		}
		c.MaxRestarts = n
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port is required")
	}
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("config: env must be dev or prod, got %q", c.Env)
	}
	switch c.Store {
	case StoreFile:
	case StoreRedis:
		if c.RedisAddress == "" {
			return errors.New("config: redis_address is required for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.RestartDelay < 0 || c.StopTimeout < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.MaxRestarts < 0 {
		return errors.New("config: max_restarts must not be negative")
	}
	if c.LogLines <= 0 {
		return errors.New("config: log_lines must be positive")
	}
	return nil
}

// EnsureDirs creates the data directory layout.
func (c Config) EnsureDirs() error {
	for _, d := range []string{
		c.ConfigDir(),
		filepath.Join(c.MediaDir(), "videos"),
		filepath.Join(c.MediaDir(), "audio"),
		c.LogsDir(),
		c.TempDir(),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return fallback
}
