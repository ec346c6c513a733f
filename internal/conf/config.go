// Package conf handles loading, validating and saving the application
// configuration backed by viper and an embedded default config file.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings holds the instance identity and logging setup.
type MainSettings struct {
	Name string    // instance name used in logs and edit summaries
	Log  LogConfig // file logging configuration
}

// LogConfig defines the configuration for file logging.
type LogConfig struct {
	Enabled  bool         // true to enable a log file
	Path     string       // path to log file
	Rotation RotationType // type of log rotation
	MaxSize  int64        // max size of log file in bytes for size rotation
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// CommonsSettings configures access to the Wikimedia Commons Action API.
// The password may also come from a mounted secret file or from ${VAR}
// expansion; resolution happens at login time.
type CommonsSettings struct {
	API          string  // Action API endpoint
	Username     string  // bot account name, empty for read-only use
	Password     string  // bot account password, supports ${VAR} references
	PasswordFile string  // path to a file holding the password, wins over Password
	RateLimit    float64 // maximum write edits per second
}

// WikidataSettings configures access to the Wikidata Action API and the
// SPARQL query service.
type WikidataSettings struct {
	API      string        // Action API endpoint
	SPARQL   string        // SPARQL query service endpoint
	CacheTTL time.Duration // how long resolved taxon entities stay cached
}

// PropertyIDs names the Wikibase properties the reconciler reads and writes.
// They are configurable so the tool can run against test wikis.
type PropertyIDs struct {
	Image        string // item image statements
	Illustration string // item illustration statements
	Depicts      string // MediaInfo depicts statements
	InferredFrom string // reference qualifier naming the heuristic used
	ImportURL    string // reference qualifier carrying the source permalink
}

// ReconcileSettings tunes the reconciliation engine.
type ReconcileSettings struct {
	ReviewThreshold   int         // categories with at least this many files go to review
	EditGroupSize     int         // writes per edit-group batch token
	Properties        PropertyIDs // property IDs used in claims
	InferredFromValue string      // item stamped into inferred-from references
	SummarySuffix     string      // extra text appended to edit summaries
	DryRun            bool        // resolve and plan but never write
}

// LedgerSettings locates the processed-entity ledger files.
type LedgerSettings struct {
	Path string // directory holding processed_*.yaml
}

// ReviewSettings locates the manual review sink.
type ReviewSettings struct {
	Path string // path of the review YAML file
}

// Settings is the root configuration struct.
type Settings struct {
	Debug   bool // true to enable debug level logging
	Verbose bool // true to enable info level console logging

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main      MainSettings
	Commons   CommonsSettings
	Wikidata  WikidataSettings
	Reconcile ReconcileSettings
	Ledger    LedgerSettings
	Review    ReviewSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the
// settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Defaults for every configuration parameter, defined in defaults.go
	setDefaultConfig()

	// Environment variable bindings, defined in env.go
	if err := configureEnvironmentVariables(); err != nil {
		// Env issues are not fatal, the config file still applies
		log.Printf("Environment variable configuration warnings: %v", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first
// default config path and loads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
// It uses SaveYAMLConfig to handle the atomic write process.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first so the replace is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	// Rename is atomic on most filesystems; fall back to copy and delete
	// when the temp directory sits on a different filesystem
	if err := os.Rename(tempFileName, configPath); err != nil {
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}
