package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/JaymoCodes/xdm/internal/config"
	"github.com/JaymoCodes/xdm/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the config file specified by the user
	cfgFile string
	// envFile holds the path to the .env file
	envFile string

	logLevel      string
	logFormat     string
	dataDirFlag   string
	storageFlag   string
	throttleFlag  int
	metricsFlag   string
	noIndexFlag   bool
	maxConcurrent int
	httpLogFlag   string
	assumeYesFlag bool
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xdm",
	Short: "A download manager for the command line",
	Long: `xdm keeps a list of downloads in progress and a list of finished
downloads, transfers them over HTTP and organises them into queues.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", config.DefaultConfigFilePath, "Configuration file path")
	pf.StringVar(&envFile, "env-file", config.DefaultEnvFilePath, "Environment file loaded before the configuration")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.StringVar(&dataDirFlag, "data-dir", "", "Directory holding the download lists, queues and index (overrides config)")
	pf.StringVar(&storageFlag, "storage", "", "Storage backend: file, bitcask or sqlite (overrides config)")
	pf.IntVar(&throttleFlag, "throttle-ms", -1, "Minimum interval between progress saves in ms (overrides config, -1 uses config)")
	pf.StringVar(&metricsFlag, "metrics-addr", "", "Serve Prometheus metrics on this address while transfers run")
	pf.BoolVar(&noIndexFlag, "no-index", false, "Disable the search index")
	pf.IntVar(&maxConcurrent, "max-concurrent", 0, "Maximum simultaneous transfers (overrides config, 0 uses config)")
	pf.StringVar(&httpLogFlag, "log-http", "", "Log HTTP request and response headers to this file")
	pf.BoolVarP(&assumeYesFlag, "yes", "y", false, "Answer yes to every confirmation")
}

// cliFlags collects the flags the user actually set.
func cliFlags(cmd *cobra.Command) config.CliFlags {
	flags := config.CliFlags{ConfigFilePath: &cfgFile, EnvFilePath: &envFile}
	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	if changed("log-level") {
		flags.LogLevel = &logLevel
	}
	if changed("log-format") {
		flags.LogFormat = &logFormat
	}
	if changed("data-dir") {
		flags.DataDir = &dataDirFlag
	}
	if changed("storage") {
		flags.StorageBackend = &storageFlag
	}
	if changed("throttle-ms") && throttleFlag >= 0 {
		flags.ThrottleMs = &throttleFlag
	}
	if changed("metrics-addr") {
		flags.MetricsAddr = &metricsFlag
	}
	if changed("no-index") {
		flags.NoIndex = &noIndexFlag
	}
	if changed("max-concurrent") && maxConcurrent > 0 {
		flags.MaxConcurrent = &maxConcurrent
	}
	if changed("log-http") {
		flags.HTTPLogFile = &httpLogFlag
	}
	return flags
}

// loadGlobalConfig builds the configuration and sets up logging before any command runs.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	initLogging(logLevel, logFormat)

	cfg, err := config.Initialize(cliFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	globalConfig = cfg
	initLogging(cfg.LogLevel, cfg.LogFormat)
	log.Debugf("Using data directory %s", cfg.DataDir)
	return nil
}

func initLogging(level, format string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level '%s', using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
}
