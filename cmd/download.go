package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mangasync/internal/catalog"
	"mangasync/internal/domain"
	"mangasync/internal/download"
	"mangasync/internal/files"
	"mangasync/internal/mangadex"
	"mangasync/internal/parse"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <manga-id>",
	Short: "Download the chapters of a manga",
	Long: `Download the chapters of a manga into <download location>/<Title>/Vol.<volume>/Ch.<chapter>.

Pages that already exist are skipped, so an interrupted download can simply be started again.
Before downloading, chapter folders whose volume changed upstream are moved to their new place.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if chapterID != "" {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return err
			}
			return mangadex.ValidateID("chapter", chapterID)
		}
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return err
		}
		return mangadex.ValidateID("manga", args[0])
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if downloadDirectory != "" {
			if err := files.IsValidLocation(downloadDirectory); err != nil {
				fmt.Println("Invalid location:", err)
				os.Exit(1)
			}
		}

		opts := appOptions{downloadLocation: downloadDirectory, noReconcile: noReconcile}
		if quiet {
			opts.logLevel = "error"
		}

		a, err := newApp(opts)
		if err != nil {
			fmt.Println("Failed to load config:", err)
			os.Exit(1)
		}
		defer a.Close()

		useDataSaver := dataSaver || a.cfg.Config.DataSaver

		langs := languages
		if len(langs) == 0 && a.cfg.Config.DefaultLanguage != "" {
			langs = []string{a.cfg.Config.DefaultLanguage}
		}

		var stats domain.DownloadStats

		switch {
		case chapterID != "":
			stats, err = a.downloader.DownloadChapter(ctx, chapterID, useDataSaver)

		case chapterRange != "":
			r, perr := parse.ChapterRange(chapterRange)
			if perr != nil {
				fmt.Println("Invalid range:", perr)
				os.Exit(1)
			}

			language := ""
			if len(langs) > 0 {
				language = langs[0]
			}
			stats, err = a.downloader.DownloadChapterRange(ctx, args[0], r.Start, r.End, language, useDataSaver)

		default:
			req, rerr := downloadRequest(args[0], langs, useDataSaver)
			if rerr != nil {
				fmt.Println("Invalid selection:", rerr)
				os.Exit(1)
			}
			stats, err = a.downloader.DownloadManga(ctx, req)
		}

		printStats(stats)

		switch {
		case errors.Is(err, context.Canceled):
			fmt.Println("Download interrupted, run the same command again to resume.")
			os.Exit(130)
		case err != nil:
			fmt.Println("Download failed:", err)
			os.Exit(1)
		case stats.Failed > 0:
			os.Exit(1)
		}
	},
}

func downloadRequest(mangaID string, langs []string, useDataSaver bool) (download.Request, error) {
	req := download.Request{
		MangaID:     mangaID,
		Languages:   langs,
		Volumes:     catalog.Labels(parse.List(volumeSelection)...),
		DataSaver:   useDataSaver,
		Groups:      groups,
		LegacyRoots: legacyRoots,
	}

	if chapterSelection != "" {
		sel, err := parse.ChapterSelection(chapterSelection)
		if err != nil {
			return req, err
		}
		if !sel.IsEmpty() {
			req.Chapters = sel.Matches
		}
	}

	return req, nil
}

func printStats(stats domain.DownloadStats) {
	title := stats.MangaTitle
	if title == "" {
		title = stats.MangaID
	}

	fmt.Printf("%s: %d chapters, %d downloaded, %d skipped, %d failed (%d pages downloaded, %d pages already present)\n",
		title, stats.TotalChapters, stats.Downloaded, stats.Skipped, stats.Failed, stats.ImagesDownloaded, stats.ImagesSkipped)

	for _, f := range stats.Failures {
		fmt.Printf("  Vol.%s Ch.%s (%s): %v\n", f.Volume, f.Number, f.ChapterID, f.Err)
	}
}
