package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInterval    = time.Second
	DefaultConcurrency = 1
	DefaultMaxOutput   = 1 << 20 // 1 MB per stream
	DefaultLogLevel    = "info"

	// MinInterval is also the scheduler's tick resolution.
	MinInterval = 100 * time.Millisecond

	defaultShell = "/bin/sh"
)

type Config struct {
	DataDir  string
	DBPath   string
	LogPath  string
	FilePath string

	Shell       string
	Interval    time.Duration
	Concurrency int
	LogLevel    string
	MaxOutput   int
}

// File is the optional config.yaml in the data directory. Zero values leave
// the defaults untouched.
type File struct {
	Interval    float64 `yaml:"interval"` // seconds, fractional allowed
	Concurrency int     `yaml:"concurrency"`
	Shell       string  `yaml:"shell"`
	DBPath      string  `yaml:"db_path"`
	LogPath     string  `yaml:"log_path"`
	LogLevel    string  `yaml:"log_level"`
	MaxOutput   int     `yaml:"max_output"`
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("BODA_DATA_DIR", filepath.Join(homeDir, ".boda"))

	c := &Config{
		DataDir:     dataDir,
		DBPath:      filepath.Join(dataDir, "boda.db"),
		LogPath:     filepath.Join(dataDir, "boda.log"),
		FilePath:    filepath.Join(dataDir, "config.yaml"),
		Shell:       ResolveShell(),
		Interval:    DefaultInterval,
		Concurrency: DefaultConcurrency,
		LogLevel:    DefaultLogLevel,
		MaxOutput:   DefaultMaxOutput,
	}

	f, err := ParseFile(c.FilePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else {
		c.Apply(f)
	}

	return c, nil
}

// ParseFile reads a YAML config file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return &f, nil
}

func (c *Config) Apply(f *File) {
	if f.Interval > 0 {
		c.Interval = IntervalFromSeconds(f.Interval)
	}
	if f.Concurrency > 0 {
		c.Concurrency = f.Concurrency
	}
	if f.Shell != "" {
		c.Shell = f.Shell
	}
	if f.DBPath != "" {
		c.DBPath = f.DBPath
	}
	if f.LogPath != "" {
		c.LogPath = f.LogPath
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.MaxOutput > 0 {
		c.MaxOutput = f.MaxOutput
	}
}

// Validate clamps the interval and rejects a non-positive concurrency.
func (c *Config) Validate() error {
	c.Interval = ClampInterval(c.Interval)
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxOutput <= 0 {
		c.MaxOutput = DefaultMaxOutput
	}
	if c.Shell == "" {
		c.Shell = defaultShell
	}
	return nil
}

func (c *Config) EnsureDataDir() error {
	for _, p := range []string{c.DataDir, filepath.Dir(c.DBPath), filepath.Dir(c.LogPath)} {
		if err := os.MkdirAll(p, 0755); err != nil {
			return err
		}
	}
	return nil
}

// IntervalFromSeconds converts a fractional number of seconds to a clamped
// dispatch interval.
func IntervalFromSeconds(sec float64) time.Duration {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return DefaultInterval
	}
	return ClampInterval(time.Duration(sec * float64(time.Second)))
}

func ClampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// ResolveShell returns $SHELL, or /bin/sh when it is unset.
func ResolveShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return defaultShell
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
