package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"mangasync/internal/domain"
	"mangasync/internal/download"
	"mangasync/internal/metrics"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Keep the monitored manga from the config up to date",
	Long: `Download new chapters of every manga listed under monitoredManga in the config,
then check again every checkInterval minutes until stopped.

Changes to monitoredManga, checkInterval and the log settings are picked up without a restart.
When metricsAddr is set, prometheus metrics are served on <metricsAddr>/metrics.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
		defer stop()

		collector := metrics.New()

		a, err := newApp(appOptions{metrics: collector})
		if err != nil {
			fmt.Println("Failed to load config:", err)
			os.Exit(1)
		}
		defer a.Close()

		if err := a.cfg.UpdateConfig(); err != nil {
			a.log.Error().Err(err).Msg("error updating config")
		}

		// init dynamic config
		a.cfg.DynamicReload(a.log)

		g, ctx := errgroup.WithContext(ctx)

		if addr := a.cfg.Config.MetricsAddr; addr != "" {
			g.Go(func() error {
				return collector.Serve(ctx, addr, a.zl)
			})
		}

		g.Go(func() error {
			a.log.Info().Msg("starting to sync monitored manga")

			interval := checkInterval(a.cfg.CheckInterval())
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				syncMonitored(ctx, a, collector)

				if next := checkInterval(a.cfg.CheckInterval()); next != interval {
					interval = next
					ticker.Reset(interval)
					a.log.Info().Msgf("check interval changed to %s", interval)
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("sync stopped")
			os.Exit(1)
		}

		a.log.Info().Msg("stopped syncing")
	},
}

func checkInterval(minutes int) time.Duration {
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// syncMonitored downloads the missing chapters of every monitored manga, one manga at a time.
func syncMonitored(ctx context.Context, a *app, collector *metrics.Collector) {
	monitored := a.cfg.Monitored()

	names := make([]string, 0, len(monitored))
	for name := range monitored {
		names = append(names, name)
	}
	slices.Sort(names)

	var total domain.DownloadStats

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}

		m := monitored[name]
		mLog := a.log.With().Str("manga", name).Logger()

		langs := m.Languages
		if len(langs) == 0 && a.cfg.Config.DefaultLanguage != "" {
			langs = []string{a.cfg.Config.DefaultLanguage}
		}

		stats, err := a.downloader.DownloadManga(ctx, download.Request{
			MangaID:   m.Manga,
			Languages: langs,
			Groups:    m.Groups,
			DataSaver: dataSaver || m.DataSaver || a.cfg.Config.DataSaver,
		})
		total.Add(stats)

		if err != nil {
			if !errors.Is(err, context.Canceled) {
				mLog.Error().Err(err).Msg("error syncing manga")
			}
			continue
		}

		for _, f := range stats.Failures {
			mLog.Error().Err(f.Err).Msgf("failed to download Vol.%s Ch.%s", f.Volume, f.Number)
		}

		if stats.Downloaded > 0 {
			mLog.Info().Msgf("downloaded %d new chapters of %q", stats.Downloaded, stats.MangaTitle)
		} else {
			mLog.Debug().Msgf("%q is up to date", stats.MangaTitle)
		}
	}

	collector.RunFinished(time.Now())

	a.log.Info().Msgf("sync finished: %d manga, %d chapters downloaded, %d failed",
		len(names), total.Downloaded, total.Failed)
}
