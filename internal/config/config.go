package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Project settings
	ProjectPath  string `mapstructure:"project_path"`
	TestPath     string `mapstructure:"test_path"`
	ManifestPath string `mapstructure:"manifest"`

	// Output settings
	OutputJSONFile string `mapstructure:"output_file"`
	OutputJSONDir  string `mapstructure:"output_dir"`

	// Execution settings
	Processors int           `mapstructure:"processors"`
	Timeout    time.Duration `mapstructure:"timeout"`
	GoBinary   string        `mapstructure:"go_binary"`
	Buffer     bool          `mapstructure:"buffer"`

	LogLevel string `mapstructure:"log_level"`

	// Paths to ignore when scanning
	PathsToIgnore []string `mapstructure:"ignore"`

	Gradebook Gradebook `mapstructure:"gradebook"`

	// Command flags
	Flags Flags `mapstructure:"-"`
}

// Gradebook configures the optional SQL store of grade runs
type Gradebook struct {
	Enabled    bool   `mapstructure:"enabled"`
	Driver     string `mapstructure:"driver"` // mysql or sqlite
	DSN        string `mapstructure:"dsn"`
	Submission string `mapstructure:"submission"`
}

// Flags holds command-line flags
type Flags struct {
	Processors   int
	TestPath     string
	NameFilter   string
	ManifestPath string
	NoBuffer     bool
	Timeout      time.Duration
	LogLevel     string
	Gradebook    bool
	Submission   string
	TestCases    bool
	OnlyFailed   bool
	OpenViewer   bool
}

// New creates a new Config with defaults
func New() *Config {
	cfg := &Config{
		ProjectPath:    DefaultProjectPath,
		TestPath:       DefaultTestPath,
		ManifestPath:   DefaultManifestPath,
		OutputJSONFile: DefaultOutputJSONFile,
		OutputJSONDir:  DefaultOutputJSONDir,
		Processors:     DefaultProcessors,
		Timeout:        DefaultTimeout,
		GoBinary:       DefaultGoBinary,
		Buffer:         true,
		LogLevel:       DefaultLogLevel,
		Gradebook:      Gradebook{Driver: DefaultGradebookDriver},
		Flags:          Flags{Processors: DefaultProcessors},
	}
	// Copy default paths to ignore
	cfg.PathsToIgnore = make([]string, len(DefaultPathsToIgnore))
	copy(cfg.PathsToIgnore, DefaultPathsToIgnore)
	return cfg
}

// Load reads configuration from defaults, an optional config file, and
// AUTOGRADE_* environment variables (a .env file in the working directory is
// honored). An empty configFile searches for autograde.{yaml,toml,json} in the
// working directory and tolerates its absence.
func Load(configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	defaults := New()
	v := viper.New()
	v.SetDefault("project_path", defaults.ProjectPath)
	v.SetDefault("test_path", defaults.TestPath)
	v.SetDefault("manifest", defaults.ManifestPath)
	v.SetDefault("output_file", defaults.OutputJSONFile)
	v.SetDefault("output_dir", defaults.OutputJSONDir)
	v.SetDefault("processors", defaults.Processors)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("go_binary", defaults.GoBinary)
	v.SetDefault("buffer", defaults.Buffer)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("ignore", defaults.PathsToIgnore)
	v.SetDefault("gradebook.enabled", false)
	v.SetDefault("gradebook.driver", defaults.Gradebook.Driver)
	v.SetDefault("gradebook.dsn", "")
	v.SetDefault("gradebook.submission", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Processors < 1 {
		return nil, fmt.Errorf("processors must be at least 1, got %d", cfg.Processors)
	}
	return cfg, nil
}

// ApplyFlags stores the flags and lets them override loaded values
func (c *Config) ApplyFlags(flags Flags) {
	c.Flags = flags

	if flags.Processors > 0 {
		c.Processors = flags.Processors
	}
	if flags.ManifestPath != "" {
		c.ManifestPath = flags.ManifestPath
	}
	if flags.NoBuffer {
		c.Buffer = false
	}
	if flags.Timeout > 0 {
		c.Timeout = flags.Timeout
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}
	if flags.Gradebook {
		c.Gradebook.Enabled = true
	}
	if flags.Submission != "" {
		c.Gradebook.Submission = flags.Submission
	}
}

// GetTestPath returns the test path, using flag if provided
func (c *Config) GetTestPath() string {
	if c.Flags.TestPath != "" {
		// If TestPath is provided, make it relative to the project path if it's not absolute
		if filepath.IsAbs(c.Flags.TestPath) {
			return c.Flags.TestPath
		}
		return filepath.Join(c.ProjectPath, c.Flags.TestPath)
	}

	// Default: combine project path and test path
	return filepath.Join(c.ProjectPath, c.TestPath)
}

// GetManifestPath returns the score manifest path, relative paths resolved against the project
func (c *Config) GetManifestPath() string {
	if filepath.IsAbs(c.ManifestPath) {
		return c.ManifestPath
	}
	return filepath.Join(c.ProjectPath, c.ManifestPath)
}

// GetOutputPath returns the full path to the report JSON file (under project so run and view use the same file).
// Resolves to an absolute path so run and view always read/write the same file regardless of cwd.
func (c *Config) GetOutputPath() string {
	p := filepath.Join(c.ProjectPath, c.OutputJSONDir, c.OutputJSONFile)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// IsPartialRun reports whether flags narrowed the run to some packages, so its
// report does not grade the whole submission
func (c *Config) IsPartialRun() bool {
	return c.Flags.NameFilter != "" || c.Flags.OnlyFailed
}

// GetPartialOutputPath returns the report file for partial runs, next to the full report
func (c *Config) GetPartialOutputPath() string {
	full := c.GetOutputPath()
	ext := filepath.Ext(full)
	return strings.TrimSuffix(full, ext) + ".partial" + ext
}

// GetSubmission returns the submission label stored with gradebook runs
func (c *Config) GetSubmission() string {
	if c.Gradebook.Submission != "" {
		return c.Gradebook.Submission
	}
	abs, err := filepath.Abs(c.ProjectPath)
	if err != nil {
		return c.ProjectPath
	}
	return filepath.Base(abs)
}
