// config.go: settings struct and loading for the Sentinel Central server.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// RotationType defines the log rotation strategy.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig defines file logging for a service.
type LogConfig struct {
	Enabled  bool         // true to enable file logging
	Path     string       // path to log file
	Rotation RotationType // rotation type
	MaxSize  int64        // max size in bytes for size rotation
}

// MainSettings contains node identity and logging settings.
type MainSettings struct {
	Name string    // node name, used as bus client id and created_by tag
	Log  LogConfig // main log settings
}

// BusSettings contains message bus connection settings.
type BusSettings struct {
	Broker         string        // broker URL, e.g. tcp://localhost:1883
	Username       string        // optional broker username
	Password       string        // optional broker password
	HandlerTimeout time.Duration // per-message handler deadline
	QoS            int           // delivery QoS, 1 for at-least-once
}

// ResolverSettings contains identity resolution thresholds.
type ResolverSettings struct {
	TauSame  float64 // cosine distance below which a candidate is the same identity
	TauAmbig float64 // upper bound of the ambiguous match band
	DeltaMin float64 // required margin between best and second in the ambiguous band
	EmaAlpha float64 // EMA weight of the incoming embedding on fusion
}

// MediaSettings contains snapshot storage settings.
type MediaSettings struct {
	Root string // base directory for anomaly snapshots
}

// SQLiteSettings contains SQLite database settings.
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the database file
}

// MySQLSettings contains MySQL database settings.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings selects and configures the relational store.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings contains HTTP API settings.
type WebServerSettings struct {
	Enabled bool
	Port    string
	// InsightCacheTTL bounds staleness of cached insight responses.
	InsightCacheTTL time.Duration
}

// Settings is the root configuration for the application.
type Settings struct {
	Debug bool

	Main      MainSettings
	Bus       BusSettings
	Resolver  ResolverSettings
	Media     MediaSettings
	Output    OutputSettings
	WebServer WebServerSettings
}

var (
	settingsInstance *Settings
	settingsOnce     sync.Once
	settingsMutex    sync.RWMutex
)

// Setting returns the global settings instance, loading it on first use.
func Setting() *Settings {
	settingsOnce.Do(func() {
		settingsMutex.Lock()
		defer settingsMutex.Unlock()
		if settingsInstance == nil {
			var err error
			settingsInstance, err = Load()
			if err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetGlobal installs s as the global settings instance.
func SetGlobal(s *Settings) {
	settingsOnce.Do(func() {})
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
}

// SetTestSettings replaces the global settings instance. Intended for tests.
func SetTestSettings(s *Settings) {
	SetGlobal(s)
}

// Load reads the configuration file and environment into a Settings struct.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling settings: %w", err)
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("SENTINEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file found, defaults plus environment apply.
	}
	return nil
}

func validateSettings(s *Settings) error {
	if !s.Output.SQLite.Enabled && !s.Output.MySQL.Enabled {
		return errors.New("no database backend enabled, enable output.sqlite or output.mysql")
	}
	if s.Resolver.TauSame > s.Resolver.TauAmbig {
		return fmt.Errorf("resolver.tausame (%.3f) must not exceed resolver.tauambig (%.3f)",
			s.Resolver.TauSame, s.Resolver.TauAmbig)
	}
	if s.Resolver.EmaAlpha <= 0 || s.Resolver.EmaAlpha >= 1 {
		return fmt.Errorf("resolver.emaalpha must be in (0,1), got %.3f", s.Resolver.EmaAlpha)
	}
	return nil
}

// GetDefaultConfigPaths returns the search paths for the configuration file.
func GetDefaultConfigPaths() []string {
	configPaths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		configPaths = append(configPaths, filepath.Join(homeDir, ".config", "sentinel"))
	}
	return append(configPaths, "/etc/sentinel")
}

// GetBasePath expands a possibly relative directory and ensures it exists.
func GetBasePath(path string) string {
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "."
	}
	return path
}
