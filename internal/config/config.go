package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultDataDir        = "xdm-data"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultConfigFilePath = "config.toml"
	DefaultEnvFilePath    = ".env"
	DefaultEnvPrefix      = "XDM"

	DefaultStorageBackend = "file"
	DefaultThrottleMs     = 2000
	DefaultQueuesFile     = "queues.toml" // Relative to DataDir if not absolute
	DefaultIndexEnabled   = true
	DefaultIndexPath      = "index.bleve" // Relative to DataDir if not absolute
	DefaultMetricsAddr    = ""

	DefaultHelpURL      = "https://xtremedownloadmanager.com/#docs"
	DefaultSupportURL   = "https://subhra74.github.io/xdm/redirect-support.html"
	DefaultBugReportURL = "https://subhra74.github.io/xdm/redirect-issue.html"

	DefaultDownloadsDir         = "downloads"
	DefaultConfirmDelete        = true
	DefaultConfirmMoveToQueue   = false
	DefaultDownloadSpeedLimitKB = 0
	DefaultDirPattern           = "{category}"

	DefaultMaxConcurrent = 3
	DefaultHTTPLogFile   = ""
)

var validBackends = []string{"file", "bitcask", "sqlite"}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("datadir", DefaultDataDir)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)

	v.SetDefault("storage.backend", DefaultStorageBackend)
	v.SetDefault("progress.throttlems", DefaultThrottleMs)
	v.SetDefault("queues.file", DefaultQueuesFile)
	v.SetDefault("index.enabled", DefaultIndexEnabled)
	v.SetDefault("index.path", DefaultIndexPath)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)

	v.SetDefault("links.help", DefaultHelpURL)
	v.SetDefault("links.support", DefaultSupportURL)
	v.SetDefault("links.bugreport", DefaultBugReportURL)

	v.SetDefault("downloads.defaultdir", DefaultDownloadsDir)
	v.SetDefault("downloads.confirmdelete", DefaultConfirmDelete)
	v.SetDefault("downloads.confirmmovetoqueue", DefaultConfirmMoveToQueue)
	v.SetDefault("downloads.defaultspeedlimitkb", DefaultDownloadSpeedLimitKB)
	v.SetDefault("downloads.dirpattern", DefaultDirPattern)

	v.SetDefault("engine.maxconcurrent", DefaultMaxConcurrent)
	v.SetDefault("engine.httplogfile", DefaultHTTPLogFile)
}

// CliFlags holds pointers to flag values; nil means the flag was not given.
type CliFlags struct {
	ConfigFilePath *string
	EnvFilePath    *string
	LogLevel       *string // --log-level
	LogFormat      *string // --log-format
	DataDir        *string // --data-dir
	StorageBackend *string // --storage
	ThrottleMs     *int    // --throttle-ms
	MetricsAddr    *string // --metrics-addr
	NoIndex        *bool   // --no-index
	MaxConcurrent  *int    // --max-concurrent
	HTTPLogFile    *string // --log-http
}

// Initialize builds the configuration from defaults, the optional .env file,
// the environment, the config file and finally the CLI flags, in that order
// of increasing precedence.
func Initialize(flags CliFlags) (models.Config, error) {
	envFile := DefaultEnvFilePath
	if flags.EnvFilePath != nil {
		envFile = *flags.EnvFilePath
	}
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("[Initialize] Could not load env file '%s'", envFile)
		}
	} else {
		log.Debugf("[Initialize] Loaded environment from %s", envFile)
	}

	v := viper.New()
	v.SetEnvPrefix(DefaultEnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		actualConfigFilePath = *flags.ConfigFilePath
		log.Debugf("[Initialize] Using config file path from CLI flag: %s", actualConfigFilePath)
	}
	v.SetConfigFile(actualConfigFilePath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			log.Debugf("[Initialize] Config file '%s' not found. Using defaults and CLI flags only.", actualConfigFilePath)
		} else {
			return models.Config{}, fmt.Errorf("reading config file %s: %w", actualConfigFilePath, err)
		}
	} else {
		log.Infof("[Initialize] Read config file: %s", v.ConfigFileUsed())
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	if flags.DataDir != nil {
		cfg.DataDir = *flags.DataDir
	}
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}
	if flags.StorageBackend != nil {
		cfg.Storage.Backend = *flags.StorageBackend
	}
	if flags.ThrottleMs != nil {
		cfg.Progress.ThrottleMs = *flags.ThrottleMs
	}
	if flags.MetricsAddr != nil {
		cfg.Metrics.Addr = *flags.MetricsAddr
	}
	if flags.NoIndex != nil && *flags.NoIndex {
		cfg.Index.Enabled = false
	}
	if flags.MaxConcurrent != nil {
		cfg.Engine.MaxConcurrent = *flags.MaxConcurrent
	}
	if flags.HTTPLogFile != nil {
		cfg.Engine.HTTPLogFile = *flags.HTTPLogFile
	}

	if err := validate(&cfg); err != nil {
		return models.Config{}, err
	}
	resolvePaths(&cfg)

	log.WithFields(log.Fields{
		"dataDir": cfg.DataDir,
		"backend": cfg.Storage.Backend,
		"index":   cfg.Index.Enabled,
	}).Debug("[Initialize] Configuration ready")
	return cfg, nil
}

func validate(cfg *models.Config) error {
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	valid := false
	for _, b := range validBackends {
		if cfg.Storage.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid storage backend %q, expected one of %s", cfg.Storage.Backend, strings.Join(validBackends, ", "))
	}
	if cfg.Progress.ThrottleMs < 0 {
		return fmt.Errorf("progress throttle cannot be negative: %d", cfg.Progress.ThrottleMs)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if cfg.Downloads.DefaultSpeedLimitKB < 0 {
		return fmt.Errorf("default speed limit cannot be negative: %d", cfg.Downloads.DefaultSpeedLimitKB)
	}
	if cfg.Engine.MaxConcurrent < 1 {
		return fmt.Errorf("engine max concurrent transfers must be at least 1: %d", cfg.Engine.MaxConcurrent)
	}
	return nil
}

// resolvePaths makes the data-dir relative paths absolute.
func resolvePaths(cfg *models.Config) {
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	} else {
		log.WithError(err).Warnf("Could not resolve data directory %s", cfg.DataDir)
	}
	if cfg.Queues.File != "" && !filepath.IsAbs(cfg.Queues.File) {
		cfg.Queues.File = filepath.Join(cfg.DataDir, cfg.Queues.File)
	}
	if cfg.Index.Path != "" && !filepath.IsAbs(cfg.Index.Path) {
		cfg.Index.Path = filepath.Join(cfg.DataDir, cfg.Index.Path)
	}
	if cfg.Engine.HTTPLogFile != "" && !filepath.IsAbs(cfg.Engine.HTTPLogFile) {
		cfg.Engine.HTTPLogFile = filepath.Join(cfg.DataDir, cfg.Engine.HTTPLogFile)
	}
}
