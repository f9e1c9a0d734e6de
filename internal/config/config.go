package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/peterzhang0216/mediagrab/internal/database"
	"github.com/peterzhang0216/mediagrab/internal/models"
)

// Default values for configuration
const (
	DefaultDownloadPath           = "downloads"
	DefaultDatabasePath           = "mediagrab.db" // Relative to DefaultPath if not absolute
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "text"
	DefaultMaxConcurrentDownloads = 3
	DefaultDownloadSpeedLimitKBps = 0 // 0 means unthrottled
	DefaultClientTimeoutSec       = 900
	DefaultCategorizeByWebsite    = true
	DefaultCategorizeByType       = true
	DefaultConfigFilePath         = "config.toml"
)

// settingsKey is where persisted user overrides live in the key/value store.
const settingsKey = "app_settings"

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("defaultpath", DefaultDownloadPath)
	v.SetDefault("databasepath", DefaultDatabasePath)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("maxconcurrentdownloads", DefaultMaxConcurrentDownloads)
	v.SetDefault("downloadspeedlimitkbps", DefaultDownloadSpeedLimitKBps)
	v.SetDefault("clienttimeoutsec", DefaultClientTimeoutSec)
	v.SetDefault("categorizebywebsite", DefaultCategorizeByWebsite)
	v.SetDefault("categorizebytype", DefaultCategorizeByType)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath         *string // --config
	LogLevel               *string // --log-level
	LogFormat              *string // --log-format
	DefaultPath            *string // --save-path
	MaxConcurrentDownloads *int    // --concurrency
	DownloadSpeedLimitKBps *int    // --speed-limit
	CategorizeByWebsite    *bool   // --by-website
	CategorizeByType       *bool   // --by-type
}

// Initialize loads configuration based on defaults, config file, environment,
// persisted settings, and flags.
// Precedence: Flags > Persisted Settings > Environment > Config File > Defaults.
// settings may be the zero value when no store is available yet.
func Initialize(flags CliFlags, settings models.Settings) (models.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDIAGRAB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setViperDefaults(v)

	configFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil && *flags.ConfigFilePath != "" {
		configFilePath = *flags.ConfigFilePath
	}
	v.SetConfigFile(configFilePath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			log.Debugf("Config file '%s' not found, using defaults", configFilePath)
		} else {
			log.Warnf("Error reading config file '%s': %v. Using defaults and flags only.", configFilePath, err)
		}
	} else {
		log.Debugf("Read config file: %s", v.ConfigFileUsed())
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	ApplySettings(&cfg, settings)

	// CLI flags win over everything.
	if flags.DefaultPath != nil {
		cfg.DefaultPath = *flags.DefaultPath
	}
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}
	if flags.MaxConcurrentDownloads != nil {
		cfg.MaxConcurrentDownloads = *flags.MaxConcurrentDownloads
	}
	if flags.DownloadSpeedLimitKBps != nil {
		cfg.DownloadSpeedLimitKBps = *flags.DownloadSpeedLimitKBps
	}
	if flags.CategorizeByWebsite != nil {
		cfg.CategorizeByWebsite = *flags.CategorizeByWebsite
	}
	if flags.CategorizeByType != nil {
		cfg.CategorizeByType = *flags.CategorizeByType
	}

	Validate(&cfg)
	return cfg, nil
}

// ApplySettings overlays persisted user overrides onto the config. Nil
// fields were never set and leave the config alone.
func ApplySettings(cfg *models.Config, s models.Settings) {
	if s.MaxConcurrentDownloads != nil {
		cfg.MaxConcurrentDownloads = *s.MaxConcurrentDownloads
	}
	if s.DownloadSpeedLimitKBps != nil {
		cfg.DownloadSpeedLimitKBps = *s.DownloadSpeedLimitKBps
	}
	if s.CategorizeByWebsite != nil {
		cfg.CategorizeByWebsite = *s.CategorizeByWebsite
	}
	if s.CategorizeByType != nil {
		cfg.CategorizeByType = *s.CategorizeByType
	}
	if s.DefaultPath != nil && *s.DefaultPath != "" {
		cfg.DefaultPath = *s.DefaultPath
	}
}

// Validate clamps out-of-range values back to safe ones instead of failing.
func Validate(cfg *models.Config) {
	if cfg.MaxConcurrentDownloads < 1 {
		log.Warnf("MaxConcurrentDownloads %d is below 1, clamping", cfg.MaxConcurrentDownloads)
		cfg.MaxConcurrentDownloads = 1
	}
	if cfg.DownloadSpeedLimitKBps < 0 {
		cfg.DownloadSpeedLimitKBps = 0
	}
	if cfg.ClientTimeoutSec <= 0 {
		cfg.ClientTimeoutSec = DefaultClientTimeoutSec
	}
	if cfg.DefaultPath == "" {
		cfg.DefaultPath = DefaultDownloadPath
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		log.Warnf("Unknown log level %q, falling back to %q", cfg.LogLevel, DefaultLogLevel)
		cfg.LogLevel = DefaultLogLevel
	}
}

// LoadSettings reads the persisted user overrides from the key/value store.
// A missing key or corrupt payload yields empty settings.
func LoadSettings(db *database.DB) models.Settings {
	var s models.Settings
	raw, err := db.Get([]byte(settingsKey))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warn("Failed to read persisted settings")
		}
		return s
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		log.WithError(err).Warn("Persisted settings are corrupt, ignoring")
		return models.Settings{}
	}
	return s
}

// SaveSettings writes the user overrides back to the key/value store.
func SaveSettings(db *database.DB, s models.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	if err := db.Put([]byte(settingsKey), raw); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	return nil
}

// SetSetting updates one named override in s. Recognized keys mirror the
// `config set` command's vocabulary.
func SetSetting(s *models.Settings, key, value string) error {
	switch strings.ToLower(key) {
	case "maxconcurrentdownloads", "concurrency":
		n, err := parsePositiveInt(value, 1)
		if err != nil {
			return err
		}
		s.MaxConcurrentDownloads = &n
	case "downloadspeedlimitkbps", "speed-limit":
		n, err := parsePositiveInt(value, 0)
		if err != nil {
			return err
		}
		s.DownloadSpeedLimitKBps = &n
	case "categorizebywebsite", "by-website":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		s.CategorizeByWebsite = &b
	case "categorizebytype", "by-type":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		s.CategorizeByType = &b
	case "defaultpath", "save-path":
		if value == "" {
			return errors.New("defaultPath cannot be empty")
		}
		v := value
		s.DefaultPath = &v
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func parsePositiveInt(value string, min int) (int, error) {
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid number %q", value)
	}
	if n < min {
		return 0, fmt.Errorf("value %d is below minimum %d", n, min)
	}
	return n, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}
