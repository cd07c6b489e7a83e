package cmd

import (
	"time"

	"mangasync/internal/buildinfo"
	"mangasync/internal/catalog"
	"mangasync/internal/config"
	"mangasync/internal/download"
	"mangasync/internal/files"
	"mangasync/internal/logger"
	"mangasync/internal/mangadex"
	"mangasync/internal/manifest"
	"mangasync/internal/metrics"
	"mangasync/internal/mirror"
	"mangasync/internal/ratelimit"
	"mangasync/internal/transport"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// app holds the components one command run needs, wired from the config.
type app struct {
	cfg        *config.AppConfig
	log        logger.Logger
	zl         zerolog.Logger
	api        *mangadex.Client
	cache      *mangadex.Cache
	catalog    *catalog.Resolver
	manifest   *manifest.Resolver
	mirror     *mirror.Mirror
	exporter   *files.Exporter
	downloader *download.Downloader
}

type appOptions struct {
	// downloadLocation overrides the configured download location
	downloadLocation string
	// logLevel overrides the configured log level
	logLevel    string
	noReconcile bool
	metrics     *metrics.Collector
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.New(configPath, buildinfo.Version)
	if err != nil {
		return nil, err
	}

	if opts.downloadLocation != "" {
		cfg.Config.DownloadLocation = opts.downloadLocation
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(cfg.Config)
	if opts.logLevel != "" {
		log.SetLogLevel(opts.logLevel)
	}
	zl := log.With().Logger()
	c := cfg.Config

	userAgent := c.UserAgent
	if userAgent == "" {
		userAgent = buildinfo.UserAgent()
	}

	rateDelay := seconds(c.RateLimitDelay)

	transportOpts := transport.Options{
		BaseURL:    c.APIURL,
		UserAgent:  userAgent,
		Timeout:    time.Duration(c.RequestTimeout) * time.Second,
		MaxRetries: c.MaxRetries,
		RetryDelay: seconds(c.RetryDelay),
		MaxBackoff: seconds(c.MaxBackoff),
	}
	if opts.metrics != nil {
		transportOpts.Observer = opts.metrics
	}

	api := transport.New(ratelimit.New(rateDelay), transportOpts, zl)

	a := &app{cfg: cfg, log: log, zl: zl}

	clientOpts := []mangadex.Option{mangadex.WithUploadsURL(c.UploadsURL)}
	if c.EnableCache {
		a.cache = mangadex.NewMemoryCache(time.Duration(c.CacheExpiry) * time.Second)
		clientOpts = append(clientOpts, mangadex.WithCache(a.cache))
	}

	a.api = mangadex.New(api, zl, clientOpts...)
	a.catalog = catalog.New(a.api, c.FeedPageSize, zl)
	a.manifest = manifest.New(a.api, false, zl)
	a.mirror = mirror.New(afero.NewOsFs(), c.DownloadLocation, mirror.Options{
		LegacyRootNames:      c.LegacyRootNames,
		PlaceholderMaxLength: c.PlaceholderMaxLength,
	}, zl)
	a.exporter = files.New(a.mirror, zl)

	fetcher := download.NewPageFetcher(nil, download.FetcherOptions{
		UserAgent:  userAgent,
		MaxRetries: c.MaxRetries,
		RetryDelay: seconds(c.RetryDelay),
		MaxBackoff: seconds(c.MaxBackoff),
	}, zl)

	chapterDelay := seconds(c.ChapterDelay)
	if chapterDelay == 0 {
		chapterDelay = 2 * rateDelay
	}

	downloadOpts := download.Options{
		MaxWorkers:   c.MaxConcurrentDownloads,
		ChapterDelay: chapterDelay,
		Reconcile:    c.AutoUpdateStructure && !opts.noReconcile,
	}
	if opts.metrics != nil {
		downloadOpts.Recorder = opts.metrics
	}

	a.downloader = download.New(a.api, a.catalog, a.manifest, fetcher, a.mirror, downloadOpts, zl)

	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Debug().Err(err).Msg("could not close cache")
		}
	}
}
