package config

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"mangasync/internal/buildinfo"
	"mangasync/internal/domain"
	"mangasync/internal/logger"
	"mangasync/internal/mangadex"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	envPrefix = "MANGASYNC__"

	DefaultAPIURL     = "https://api.mangadex.org"
	DefaultUploadsURL = "https://uploads.mangadex.org"

	MinRateLimitDelay = 0.2
	MaxWorkers        = 20
)

var DefaultLegacyRootNames = []string{"ja", "en", "es", "fr", "de", "it", "pt", "pt-br", "zh", "ko", "ru"}

var configTemplate = `# config.yaml

# Download Location
# Root of the mirrored tree: <downloadLocation>/<Title>/[Vol.<v>/]Ch.<c>/NNN.<ext>
#
# Default: "./downloads"
#
downloadLocation: "./downloads"

# Max Concurrent Downloads
# Number of page downloads running at the same time (1-20)
#
# Default: 10
#
maxConcurrentDownloads: 10

# Rate Limit Delay
# Minimum pause in seconds between the end of one API request and the start of the next.
# Values below 0.2 are rejected.
#
# Default: 0.25
#
rateLimitDelay: 0.25

# Retries
# Number of retries for failed requests and the base delay in seconds between them.
# Server errors back off exponentially up to maxBackoff seconds.
#
# Default: 3, 2.0, 30
#
maxRetries: 3
retryDelay: 2.0
#maxBackoff: 30

# Request Timeout in seconds
#
# Default: 30
#
requestTimeout: 30

# Default Language used when no language is passed on the command line
#
# Default: "en"
#
defaultLanguage: "en"

# Content ratings included in searches
#
# Default: ["safe", "suggestive", "erotica"]
#
defaultContentRating:
  - safe
  - suggestive
  - erotica

# Auto Update Structure
# Reconcile the existing tree (legacy folder names, moved chapters, Vol.none) before downloading
#
# Default: true
#
autoUpdateStructure: true

# Legacy Root Names
# Folder names from older runs that are renamed to the manga title during reconciliation.
# A folder is only treated as legacy when it holds Ch./Vol. folders.
#
#legacyRootNames: ["ja", "en", "es", "fr", "de", "it", "pt", "pt-br", "zh", "ko", "ru"]
#placeholderMaxLength: 3

# Cache manga, tag, author and group lookups for cacheExpiry seconds within a run
#
# Default: true, 3600
#
enableCache: true
cacheExpiry: 3600

# Download the compressed data-saver images
#
# Default: false
#
dataSaver: false

# Naming Template
# Used by the export command to name archives
# The default will result something like this: Manga Ch. 001 - Chapter Title
#
# Default: {manga:<.>} Ch. {num:3}{title: - <.>}
#
namingTemplate: "{manga:<.>} Ch. {num:3}{title: - <.>}"

# Check interval in minutes for the sync command
#
# Default: 60
#
checkInterval: 60

# Monitored Manga
# Manga kept in sync by the sync command
#
monitoredManga:
  # Custom name you can give the entry to easily distinguish between them
  #
  Silent Witch:
    # ID of the manga on MangaDex
    #
    manga: "f7888782-0727-49b0-95ec-a3530c70f83b"

    # Languages to download, the first one wins when a chapter exists in several
    #
    languages: ["en"]

    # Preferred scanlation groups
    #
    #groups: []

# Address for the prometheus metrics endpoint of the sync command, e.g. ":9090"
#
# Optional
#
#metricsAddr: ""

# mangasync logs file
# If not defined, logs to stdout
# Make sure to use forward slashes and include the filename with extension. e.g. "logs/mangasync.log", "C:/mangasync/logs/mangasync.log"
#
# Optional
#
#logPath: ""

# Log level
#
# Default: "INFO"
#
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
#
logLevel: "INFO"

# Log Max Size
#
# Default: 50
#
# Max log size in megabytes
#
#logMaxSize: 50

# Log Max Backups
#
# Default: 3
#
# Max amount of old log files
#
#logMaxBackups: 3
`

func (c *AppConfig) writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(configPath, os.ModePerm)
		if err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		f, err := os.Create(cfgPath)
		if err != nil { // perm 0666
			// handle failed create
			log.Printf("error creating file: %q", err)
			return err
		}
		defer f.Close()

		if _, err = f.WriteString(configTemplate); err != nil {
			log.Printf("error writing contents to file: %v %q", configPath, err)
			return err
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	UpdateConfig() error
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      *sync.Mutex
	v      *viper.Viper
}

// New reads the config file in configPath (or the default search paths), then
// applies the .env file and MANGASYNC__ environment overrides on top.
func New(configPath string, version string) (*AppConfig, error) {
	c := &AppConfig{
		m: new(sync.Mutex),
		v: viper.New(),
	}
	c.defaults()
	c.Config = &domain.Config{
		Version:    version,
		ConfigPath: configPath,
	}

	if err := c.load(configPath); err != nil {
		return nil, err
	}

	// a missing .env file is fine
	_ = godotenv.Load()
	c.loadFromEnv()

	return c, nil
}

func (c *AppConfig) defaults() {
	c.v.SetDefault("downloadLocation", "./downloads")
	c.v.SetDefault("maxConcurrentDownloads", 10)
	c.v.SetDefault("rateLimitDelay", 0.25)
	c.v.SetDefault("maxRetries", 3)
	c.v.SetDefault("retryDelay", 2.0)
	c.v.SetDefault("maxBackoff", 30.0)
	c.v.SetDefault("requestTimeout", 30)
	c.v.SetDefault("chapterDelay", 0)
	c.v.SetDefault("apiURL", DefaultAPIURL)
	c.v.SetDefault("uploadsURL", DefaultUploadsURL)
	c.v.SetDefault("userAgent", buildinfo.UserAgent())
	c.v.SetDefault("defaultLanguage", "en")
	c.v.SetDefault("defaultContentRating", []string{"safe", "suggestive", "erotica"})
	c.v.SetDefault("autoUpdateStructure", true)
	c.v.SetDefault("legacyRootNames", DefaultLegacyRootNames)
	c.v.SetDefault("placeholderMaxLength", 3)
	c.v.SetDefault("enableCache", true)
	c.v.SetDefault("cacheExpiry", 3600)
	c.v.SetDefault("dataSaver", false)
	c.v.SetDefault("feedPageSize", 100)
	c.v.SetDefault("namingTemplate", "{manga:<.>} Ch. {num:3}{title: - <.>}")
	c.v.SetDefault("checkInterval", 60)
	c.v.SetDefault("monitoredManga", make(map[string]*domain.MonitoredManga))
	c.v.SetDefault("metricsAddr", "")
	c.v.SetDefault("logPath", "")
	c.v.SetDefault("logLevel", "INFO")
	c.v.SetDefault("logMaxSize", 50)
	c.v.SetDefault("logMaxBackups", 3)
}

func (c *AppConfig) loadFromEnv() {
	envs := os.Environ()
	for _, env := range envs {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}

		envPair := strings.SplitN(env, "=", 2)
		if len(envPair) != 2 || envPair[1] == "" {
			continue
		}

		value := envPair[1]
		switch strings.TrimPrefix(envPair[0], envPrefix) {
		case "DOWNLOAD_LOCATION":
			c.Config.DownloadLocation = value
		case "MAX_CONCURRENT_DOWNLOADS":
			if i, err := strconv.Atoi(value); err == nil {
				c.Config.MaxConcurrentDownloads = i
			}
		case "RATE_LIMIT_DELAY":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				c.Config.RateLimitDelay = f
			}
		case "MAX_RETRIES":
			if i, err := strconv.Atoi(value); err == nil {
				c.Config.MaxRetries = i
			}
		case "RETRY_DELAY":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				c.Config.RetryDelay = f
			}
		case "REQUEST_TIMEOUT":
			if i, _ := strconv.ParseInt(value, 10, 32); i > 0 {
				c.Config.RequestTimeout = int(i)
			}
		case "API_URL":
			c.Config.APIURL = value
		case "USER_AGENT":
			c.Config.UserAgent = value
		case "DEFAULT_LANGUAGE":
			c.Config.DefaultLanguage = value
		case "DEFAULT_CONTENT_RATING":
			c.Config.DefaultContentRating = splitList(value)
		case "AUTO_UPDATE_STRUCTURE":
			if b, err := strconv.ParseBool(value); err == nil {
				c.Config.AutoUpdateStructure = b
			}
		case "LEGACY_ROOT_NAMES":
			c.Config.LegacyRootNames = splitList(value)
		case "ENABLE_CACHE":
			if b, err := strconv.ParseBool(value); err == nil {
				c.Config.EnableCache = b
			}
		case "CACHE_EXPIRY":
			if i, _ := strconv.ParseInt(value, 10, 32); i > 0 {
				c.Config.CacheExpiry = int(i)
			}
		case "DATA_SAVER":
			if b, err := strconv.ParseBool(value); err == nil {
				c.Config.DataSaver = b
			}
		case "NAMING_TEMPLATE":
			c.Config.NamingTemplate = value
		case "CHECK_INTERVAL":
			if i, _ := strconv.ParseInt(value, 10, 32); i > 0 {
				c.Config.CheckInterval = int(i)
			}
		case "METRICS_ADDR":
			c.Config.MetricsAddr = value
		case "LOG_LEVEL":
			c.Config.LogLevel = value
		case "LOG_PATH":
			c.Config.LogPath = value
		case "LOG_MAX_SIZE":
			if i, _ := strconv.ParseInt(value, 10, 32); i > 0 {
				c.Config.LogMaxSize = int(i)
			}
		case "LOG_MAX_BACKUPS":
			if i, _ := strconv.ParseInt(value, 10, 32); i > 0 {
				c.Config.LogMaxBackups = int(i)
			}
		}
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *AppConfig) load(configPath string) error {
	c.v.SetConfigType("yaml")

	if configPath != "" {
		// clean trailing slash from configPath
		configPath = path.Clean(configPath)

		// check if path and file exists
		// if not, create path and file
		if err := c.writeConfig(configPath, "config.yaml"); err != nil {
			log.Printf("write error: %q", err)
		}

		c.v.SetConfigFile(path.Join(configPath, "config.yaml"))
	} else {
		c.v.SetConfigName("config")

		// Search config in directories
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$HOME/.config/mangasync")
		c.v.AddConfigPath("$HOME/.mangasync")
	}

	// running without a config file is fine, defaults apply
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("config read error: %q", err)
		}
	}

	if err := c.v.Unmarshal(c.Config); err != nil {
		return errors.Wrapf(err, "could not unmarshal config file: %v", c.v.ConfigFileUsed())
	}

	return nil
}

// Validate checks the values that bound concurrency and request pacing.
func (c *AppConfig) Validate() error {
	cfg := c.Config

	if cfg.DownloadLocation == "" {
		return domain.NewError(domain.KindValidation, "downloadLocation", "can't be empty")
	}
	if cfg.MaxConcurrentDownloads < 1 || cfg.MaxConcurrentDownloads > MaxWorkers {
		return domain.NewError(domain.KindValidation, "maxConcurrentDownloads", "must be between 1 and %d, got %d", MaxWorkers, cfg.MaxConcurrentDownloads)
	}
	if cfg.RateLimitDelay < MinRateLimitDelay {
		return domain.NewError(domain.KindValidation, "rateLimitDelay", "must be at least %.1f seconds, got %g", MinRateLimitDelay, cfg.RateLimitDelay)
	}
	if cfg.MaxRetries < 0 {
		return domain.NewError(domain.KindValidation, "maxRetries", "can't be negative")
	}
	if cfg.RetryDelay < 0 || cfg.ChapterDelay < 0 {
		return domain.NewError(domain.KindValidation, "retryDelay", "delays can't be negative")
	}
	if cfg.RequestTimeout <= 0 {
		return domain.NewError(domain.KindValidation, "requestTimeout", "must be positive")
	}
	if cfg.FeedPageSize < 1 || cfg.FeedPageSize > mangadex.MaxFeedLimit {
		return domain.NewError(domain.KindValidation, "feedPageSize", "must be between 1 and %d, got %d", mangadex.MaxFeedLimit, cfg.FeedPageSize)
	}

	return nil
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	if c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.WatchConfig()

	c.v.OnConfigChange(func(_ fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		logLevel := c.v.GetString("logLevel")
		c.Config.LogLevel = logLevel
		log.SetLogLevel(c.Config.LogLevel)

		logPath := c.v.GetString("logPath")
		c.Config.LogPath = logPath

		c.Config.CheckInterval = c.v.GetInt("checkInterval")

		var monitored map[string]*domain.MonitoredManga
		if err := c.v.UnmarshalKey("monitoredManga", &monitored); err == nil {
			c.Config.MonitoredManga = monitored
		}

		log.Debug().Msg("config file reloaded!")
	})
}

// Monitored returns a snapshot of the monitored manga, safe to use while the config reloads.
func (c *AppConfig) Monitored() map[string]domain.MonitoredManga {
	c.m.Lock()
	defer c.m.Unlock()

	out := make(map[string]domain.MonitoredManga, len(c.Config.MonitoredManga))
	for name, m := range c.Config.MonitoredManga {
		if m != nil {
			out[name] = *m
		}
	}
	return out
}

// CheckInterval returns the sync interval in minutes.
func (c *AppConfig) CheckInterval() int {
	c.m.Lock()
	defer c.m.Unlock()

	return c.Config.CheckInterval
}

func (c *AppConfig) UpdateConfig() error {
	filePath := path.Join(c.Config.ConfigPath, "config.yaml")

	f, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("could not read config filePath: %s: %w", filePath, err)
	}

	lines := strings.Split(string(f), "\n")
	lines = c.processLines(lines)

	output := strings.Join(lines, "\n")
	if err := os.WriteFile(filePath, []byte(output), 0o644); err != nil {
		return fmt.Errorf("could not write config file: %s: %w", filePath, err)
	}

	return nil
}

func (c *AppConfig) processLines(lines []string) []string {
	// keep track of not found values to append at bottom
	var (
		foundLineLogLevel = false
		foundLineLogPath  = false
	)

	for i, line := range lines {
		if !foundLineLogLevel && strings.Contains(line, "logLevel:") {
			lines[i] = fmt.Sprintf(`logLevel: "%s"`, c.Config.LogLevel)
			foundLineLogLevel = true
		}
		if !foundLineLogPath && strings.Contains(line, "logPath:") {
			if c.Config.LogPath == "" {
				lines[i] = `#logPath: ""`
			} else {
				lines[i] = fmt.Sprintf(`logPath: "%s"`, c.Config.LogPath)
			}
			foundLineLogPath = true
		}
	}

	if !foundLineLogLevel {
		lines = append(lines, "# Log level")
		lines = append(lines, "#")
		lines = append(lines, `# Default: "INFO"`)
		lines = append(lines, "#")
		lines = append(lines, `# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"`)
		lines = append(lines, "#")
		lines = append(lines, fmt.Sprintf(`logLevel: "%s"`, c.Config.LogLevel))
	}

	if !foundLineLogPath {
		lines = append(lines, "# Log Path")
		lines = append(lines, "#")
		lines = append(lines, "# Optional")
		lines = append(lines, "#")
		if c.Config.LogPath == "" {
			lines = append(lines, `#logPath: ""`)
		} else {
			lines = append(lines, fmt.Sprintf(`logPath: "%s"`, c.Config.LogPath))
		}
	}

	return lines
}
