package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peterzhang0216/mediagrab/internal/config"
	"github.com/peterzhang0216/mediagrab/internal/database"
	"github.com/peterzhang0216/mediagrab/internal/helpers"
	"github.com/peterzhang0216/mediagrab/internal/models"
	"github.com/peterzhang0216/mediagrab/internal/webclient"
)

// Persistent flag storage. Empty / sentinel values mean "not provided".
var (
	cfgFile         string
	logLevelFlag    string
	logFormatFlag   string
	savePathFlag    string
	concurrencyFlag int
	speedLimitFlag  int
	logHTTPFlag     bool
)

// globalConfig holds the fully resolved configuration for the running command.
var globalConfig models.Config

// globalDB is the shared key/value store; opened lazily by openDatabase.
var globalDB *database.DB

var rootCmd = &cobra.Command{
	Use:   "mediagrab",
	Short: "Detect and download media resources from web pages",
	Long: `Mediagrab scans web pages for images, video, audio, and streaming
manifests, scores what it finds, and downloads selected resources through
a bounded FIFO queue with pause, resume, and cancel support.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Logging level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Logging format (text, json)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save downloads (overrides config)")
	rootCmd.PersistentFlags().IntVar(&concurrencyFlag, "concurrency", -1, "Maximum simultaneous downloads (overrides config, -1 uses config)")
	rootCmd.PersistentFlags().IntVar(&speedLimitFlag, "speed-limit", -1, "Dispatch throttle in KB/s, 0 disables (overrides config, -1 uses config)")
	rootCmd.PersistentFlags().BoolVar(&logHTTPFlag, "log-http", false, "Log HTTP requests and responses to http.log in the save directory")
}

// httpTransport builds the shared transport, optionally wrapped with the
// request logger and a network-sighting observer.
func httpTransport(observer webclient.Observer) http.RoundTripper {
	logPath := ""
	if logHTTPFlag {
		logPath = filepath.Join(globalConfig.DefaultPath, "http.log")
		if !helpers.CheckAndMakeDir(globalConfig.DefaultPath) {
			log.Warnf("Save path %s not available, logging HTTP to current directory", globalConfig.DefaultPath)
			logPath = "http.log"
		}
	}
	transport, err := webclient.NewTransport(http.DefaultTransport, observer, logPath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize HTTP logging transport, logging disabled")
		transport, _ = webclient.NewTransport(http.DefaultTransport, observer, "")
	}
	return transport
}

// cliFlags converts the provided persistent flags into the config package's
// pointer form, leaving unset flags nil.
func cliFlags(cmd *cobra.Command) config.CliFlags {
	flags := config.CliFlags{}
	if cfgFile != "" {
		flags.ConfigFilePath = &cfgFile
	}
	if cmd.Flags().Changed("log-level") {
		flags.LogLevel = &logLevelFlag
	}
	if cmd.Flags().Changed("log-format") {
		flags.LogFormat = &logFormatFlag
	}
	if cmd.Flags().Changed("save-path") {
		flags.DefaultPath = &savePathFlag
	}
	if cmd.Flags().Changed("concurrency") {
		flags.MaxConcurrentDownloads = &concurrencyFlag
	}
	if cmd.Flags().Changed("speed-limit") {
		flags.DownloadSpeedLimitKBps = &speedLimitFlag
	}
	if cmd.Flags().Changed("by-website") {
		flags.CategorizeByWebsite = &downloadByWebsiteFlag
	}
	if cmd.Flags().Changed("by-type") {
		flags.CategorizeByType = &downloadByTypeFlag
	}
	return flags
}

// loadGlobalConfig resolves configuration before any command runs, layering
// persisted settings from the store underneath the CLI flags.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	// First pass without persisted settings so we know where the database is.
	cfg, err := config.Initialize(cliFlags(cmd), models.Settings{})
	if err != nil {
		return err
	}

	db, err := database.Open(databasePath(cfg))
	if err != nil {
		log.WithError(err).Warn("Could not open database; persisted settings and history unavailable")
	} else {
		globalDB = db
		settings := config.LoadSettings(db)
		cfg, err = config.Initialize(cliFlags(cmd), settings)
		if err != nil {
			return err
		}
	}

	globalConfig = cfg
	initLogging(cfg)
	return nil
}

// databasePath resolves the configured database location, treating a
// relative path as relative to the download directory.
func databasePath(cfg models.Config) string {
	if filepath.IsAbs(cfg.DatabasePath) {
		return cfg.DatabasePath
	}
	return filepath.Join(cfg.DefaultPath, cfg.DatabasePath)
}

// openDatabase returns the shared store, or an error when startup could not
// open it.
func openDatabase() (*database.DB, error) {
	if globalDB == nil {
		return nil, fmt.Errorf("database is not available")
	}
	return globalDB, nil
}

func closeDatabase() {
	if globalDB != nil {
		if err := globalDB.Close(); err != nil {
			log.WithError(err).Warn("Failed to close database")
		}
		globalDB = nil
	}
}

func initLogging(cfg models.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
