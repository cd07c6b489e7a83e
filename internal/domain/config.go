package domain

type Config struct {
	Version                string
	ConfigPath             string
	DownloadLocation       string                     `yaml:"downloadLocation"`
	MaxConcurrentDownloads int                        `yaml:"maxConcurrentDownloads"`
	RateLimitDelay         float64                    `yaml:"rateLimitDelay"` // in seconds
	MaxRetries             int                        `yaml:"maxRetries"`
	RetryDelay             float64                    `yaml:"retryDelay"` // in seconds
	MaxBackoff             float64                    `yaml:"maxBackoff"` // in seconds
	RequestTimeout         int                        `yaml:"requestTimeout"` // in seconds
	ChapterDelay           float64                    `yaml:"chapterDelay"`   // in seconds, 0 means twice the rate limit delay
	APIURL                 string                     `yaml:"apiURL"`
	UploadsURL             string                     `yaml:"uploadsURL"`
	UserAgent              string                     `yaml:"userAgent"`
	DefaultLanguage        string                     `yaml:"defaultLanguage"`
	DefaultContentRating   []string                   `yaml:"defaultContentRating"`
	AutoUpdateStructure    bool                       `yaml:"autoUpdateStructure"`
	LegacyRootNames        []string                   `yaml:"legacyRootNames"`
	PlaceholderMaxLength   int                        `yaml:"placeholderMaxLength"`
	EnableCache            bool                       `yaml:"enableCache"`
	CacheExpiry            int                        `yaml:"cacheExpiry"` // in seconds
	DataSaver              bool                       `yaml:"dataSaver"`
	FeedPageSize           int                        `yaml:"feedPageSize"`
	NamingTemplate         string                     `yaml:"namingTemplate"`
	CheckInterval          int                        `yaml:"checkInterval"` // in minutes
	MonitoredManga         map[string]*MonitoredManga `yaml:"monitoredManga"`
	MetricsAddr            string                     `yaml:"metricsAddr"`
	LogPath                string                     `yaml:"logPath"`
	LogLevel               string                     `yaml:"LogLevel"`
	LogMaxSize             int                        `yaml:"logMaxSize"` // in megabytes
	LogMaxBackups          int                        `yaml:"logMaxBackups"`
}

type MonitoredManga struct {
	Manga     string   `yaml:"manga"`
	Languages []string `yaml:"languages"`
	Groups    []string `yaml:"groups"`
	DataSaver bool     `yaml:"dataSaver"`
}
