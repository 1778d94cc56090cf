package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/engagemesh/engage/src/common"
	"github.com/engagemesh/engage/src/ledger"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultServiceAddr       = "127.0.0.1:8090"
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPruneInterval     = time.Hour
	DefaultCacheSize         = 10000
	DefaultStore             = false
)

// Config contains all the configuration properties of an engage node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Moniker is the node identifier recorded in vertices and engagement
	// proofs. It defaults to the hex public key when left empty.
	Moniker string `mapstructure:"moniker"`

	// ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// HeartbeatInterval is the time between heartbeat vertices.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`

	// PruneInterval is the time between retention-pruning passes.
	PruneInterval time.Duration `mapstructure:"prune-interval"`

	// Store activates the badgerDB backend instead of the in-memory store.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory of the badger database.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the number of items in the engine's LRU caches.
	CacheSize int `mapstructure:"cache-size"`

	// Alpha is the tip-selection walk-weighting exponent.
	Alpha float64 `mapstructure:"alpha"`

	// WalkLimit caps the number of steps of one tip-selection walk.
	WalkLimit int `mapstructure:"walk-limit"`

	// RecencyWindow is the number of most recent unanchored vertices among
	// which a tip-selection walk starts.
	RecencyWindow int `mapstructure:"recency-window"`

	// ProofMaxAge is the freshness window for engagement proofs and the
	// replay guard's sliding window.
	ProofMaxAge time.Duration `mapstructure:"proof-max-age"`

	// RetentionWindow is how long unanchored vertices are retained.
	RetentionWindow time.Duration `mapstructure:"retention"`

	// LogFiles activates per-level log files in DataDir, in addition to
	// stderr output.
	LogFiles bool `mapstructure:"log-files"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey `mapstructure:"-"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		ServiceAddr:       DefaultServiceAddr,
		HeartbeatInterval: DefaultHeartbeatInterval,
		PruneInterval:     DefaultPruneInterval,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
		CacheSize:         DefaultCacheSize,
		Alpha:             ledger.DefaultAlpha,
		WalkLimit:         ledger.DefaultMaxWalkSteps,
		RecencyWindow:     ledger.DefaultRecencyWindow,
		ProofMaxAge:       ledger.DefaultNonceMaxAge,
		RetentionWindow:   ledger.DefaultRetentionWindow,
	}
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// LedgerConfig derives the engine parameters from the node configuration.
func (c *Config) LedgerConfig() ledger.LedgerConfig {
	return ledger.LedgerConfig{
		Selector: ledger.SelectorConfig{
			Alpha:         c.Alpha,
			MaxWalkSteps:  c.WalkLimit,
			RecencyWindow: c.RecencyWindow,
		},
		ProofMaxAge:     c.ProofMaxAge,
		RetentionWindow: c.RetentionWindow,
		CacheSize:       c.CacheSize,
	}
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, the user has explicitly set it to something
// else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "engage".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFiles {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.InfoLevel:  filepath.Join(c.DataDir, "info.log"),
					logrus.DebugLevel: filepath.Join(c.DataDir, "debug.log"),
					logrus.ErrorLevel: filepath.Join(c.DataDir, "error.log"),
				},
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "engage")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory name for top-level engage
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Engage")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Engage")
		} else {
			return filepath.Join(home, ".engage")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
