package config

import "time"

const (
	// EnvPrefix prefixes every environment variable read by Load
	EnvPrefix = "AUTOGRADE"
	// DefaultConfigName is the config file name searched for, without extension
	DefaultConfigName = "autograde"
	// DefaultProjectPath is the default project path
	DefaultProjectPath = "."
	// DefaultTestPath is the default test path
	DefaultTestPath = "."
	// DefaultManifestPath is the default score manifest
	DefaultManifestPath = "grading.yaml"
	// DefaultOutputJSONFile is the default report file name
	DefaultOutputJSONFile = "results.json"
	// DefaultOutputJSONDir is the default output directory
	DefaultOutputJSONDir = ".autograde"
	// DefaultProcessors is the default number of processors
	DefaultProcessors = 4
	// DefaultTimeout is passed to go test -timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultGoBinary is the go toolchain used to run tests
	DefaultGoBinary = "go"
	// DefaultLogLevel is the default logrus level
	DefaultLogLevel = "warn"
	// DefaultGradebookDriver is the default gradebook database driver
	DefaultGradebookDriver = "sqlite"
)

// DefaultPathsToIgnore are the default directories to ignore when scanning for tests
var DefaultPathsToIgnore = []string{
	"vendor",
	"testdata",
	"node_modules",
	".git",
	".autograde",
}
