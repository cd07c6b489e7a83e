package config

import (
	"os"
	"path/filepath"
	"testing"

	"mangasync/internal/domain"
	"mangasync/internal/mangadex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesTemplateAndLoadsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := New(dir, "test")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	c := cfg.Config
	assert.Equal(t, "test", c.Version)
	assert.Equal(t, "./downloads", c.DownloadLocation)
	assert.Equal(t, 10, c.MaxConcurrentDownloads)
	assert.InDelta(t, 0.25, c.RateLimitDelay, 0.0001)
	assert.Equal(t, 3, c.MaxRetries)
	assert.InDelta(t, 2.0, c.RetryDelay, 0.0001)
	assert.Equal(t, 30, c.RequestTimeout)
	assert.Equal(t, "en", c.DefaultLanguage)
	assert.Equal(t, []string{"safe", "suggestive", "erotica"}, c.DefaultContentRating)
	assert.True(t, c.AutoUpdateStructure)
	assert.True(t, c.EnableCache)
	assert.Equal(t, 3600, c.CacheExpiry)
	assert.Equal(t, DefaultAPIURL, c.APIURL)
	assert.Equal(t, 100, c.FeedPageSize)
	assert.Len(t, c.MonitoredManga, 1)

	assert.NoError(t, cfg.Validate())
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("MANGASYNC__DOWNLOAD_LOCATION", "/data/manga")
	t.Setenv("MANGASYNC__MAX_CONCURRENT_DOWNLOADS", "4")
	t.Setenv("MANGASYNC__RATE_LIMIT_DELAY", "0.5")
	t.Setenv("MANGASYNC__AUTO_UPDATE_STRUCTURE", "false")
	t.Setenv("MANGASYNC__LEGACY_ROOT_NAMES", "ja, en ,")
	t.Setenv("MANGASYNC__LOG_LEVEL", "TRACE")

	cfg, err := New(t.TempDir(), "test")
	require.NoError(t, err)

	c := cfg.Config
	assert.Equal(t, "/data/manga", c.DownloadLocation)
	assert.Equal(t, 4, c.MaxConcurrentDownloads)
	assert.InDelta(t, 0.5, c.RateLimitDelay, 0.0001)
	assert.False(t, c.AutoUpdateStructure)
	assert.Equal(t, []string{"ja", "en"}, c.LegacyRootNames)
	assert.Equal(t, "TRACE", c.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *domain.Config)
		ok     bool
	}{
		{name: "defaults", modify: func(c *domain.Config) {}, ok: true},
		{name: "too many workers", modify: func(c *domain.Config) { c.MaxConcurrentDownloads = 21 }},
		{name: "no workers", modify: func(c *domain.Config) { c.MaxConcurrentDownloads = 0 }},
		{name: "rate limit too low", modify: func(c *domain.Config) { c.RateLimitDelay = 0.1 }},
		{name: "rate limit at minimum", modify: func(c *domain.Config) { c.RateLimitDelay = 0.2 }, ok: true},
		{name: "empty location", modify: func(c *domain.Config) { c.DownloadLocation = "" }},
		{name: "page size", modify: func(c *domain.Config) { c.FeedPageSize = mangadex.MaxFeedLimit + 1 }},
		{name: "page size at feed limit", modify: func(c *domain.Config) { c.FeedPageSize = mangadex.MaxFeedLimit }, ok: true},
		{name: "no page size", modify: func(c *domain.Config) { c.FeedPageSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := New(t.TempDir(), "test")
			require.NoError(t, err)

			tt.modify(cfg.Config)

			err = cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestProcessLines(t *testing.T) {
	c := &AppConfig{Config: &domain.Config{LogLevel: "WARN", LogPath: "logs/mangasync.log"}}

	lines := c.processLines([]string{`logLevel: "INFO"`, `#logPath: ""`})
	assert.Equal(t, []string{`logLevel: "WARN"`, `logPath: "logs/mangasync.log"`}, lines)

	lines = c.processLines([]string{"downloadLocation: x"})
	assert.Contains(t, lines, `logLevel: "WARN"`)
	assert.Contains(t, lines, `logPath: "logs/mangasync.log"`)
}
