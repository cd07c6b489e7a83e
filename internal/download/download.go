package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mangasync/internal/catalog"
	"mangasync/internal/domain"
	"mangasync/internal/manifest"
	"mangasync/internal/metrics"
	"mangasync/internal/mirror"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxWorkers = 10

	stateResolving   = "resolving"
	stateReconciling = "reconciling"
	statePlanning    = "planning"
	stateFetching    = "fetching"
	stateSummarizing = "summarizing"
	stateDone        = "done"
)

type MangaSource interface {
	GetManga(ctx context.Context, id string) (domain.Manga, error)
	GetChapter(ctx context.Context, id string) (domain.Chapter, error)
}

type ChapterSource interface {
	ListChapters(ctx context.Context, mangaID string, languages []string, volumes, chapters catalog.Filter) ([]domain.Chapter, error)
	ChapterRange(ctx context.Context, mangaID string, start, end float64, language string) ([]domain.Chapter, error)
}

type ManifestSource interface {
	GetManifest(ctx context.Context, chapterID string) (domain.ImageManifest, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) (Page, error)
}

// Store is the part of the download tree the downloader writes through.
type Store interface {
	Reconcile(ctx context.Context, folderTitle string, chapters []domain.Chapter, legacyRoots []string) (mirror.Report, error)
	ChapterDir(folderTitle string, ch domain.Chapter) string
	MissingPages(dir string, pageCount int) ([]int, error)
	WritePage(dir string, index int, ext string, data []byte) (string, error)
}

// Recorder receives progress counters. *metrics.Collector implements it.
type Recorder interface {
	ChapterDone(result string)
	PagesDone(result string, n int)
	PageStarted()
	PageFinished(bytes int)
}

type Options struct {
	MaxWorkers int
	// ChapterDelay is the pause between manifest requests of successive chapters.
	ChapterDelay time.Duration
	// Reconcile fixes the folder layout before any page is written.
	Reconcile bool
	Recorder  Recorder
}

type Downloader struct {
	manga     MangaSource
	chapters  ChapterSource
	manifests ManifestSource
	fetcher   Fetcher
	store     Store
	opts      Options
	log       zerolog.Logger
}

func New(manga MangaSource, chapters ChapterSource, manifests ManifestSource, fetcher Fetcher, store Store, opts Options, log zerolog.Logger) *Downloader {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	return &Downloader{
		manga:     manga,
		chapters:  chapters,
		manifests: manifests,
		fetcher:   fetcher,
		store:     store,
		opts:      opts,
		log:       log.With().Str("module", "download").Logger(),
	}
}

// Request selects what DownloadManga fetches. Empty filters select everything.
type Request struct {
	MangaID   string
	Languages []string
	Volumes   catalog.Filter
	Chapters  catalog.Filter
	DataSaver bool
	// Groups are preferred scanlation groups when a chapter has several uploads.
	Groups      []string
	LegacyRoots []string
}

type plan struct {
	manga       domain.Manga
	chapters    []domain.Chapter
	dataSaver   bool
	legacyRoots []string
}

// DownloadManga downloads every selected chapter of a manga that is not complete on disk yet.
// Only a failure to resolve the manga or its chapter list is returned as an error;
// chapter failures are recorded in the stats. On cancellation the partial stats are
// returned together with the context error.
func (d *Downloader) DownloadManga(ctx context.Context, req Request) (domain.DownloadStats, error) {
	stats := domain.DownloadStats{MangaID: req.MangaID}
	log := d.log.With().Str("manga", req.MangaID).Logger()

	log.Debug().Str("state", stateResolving).Msg("resolving manga")

	manga, err := d.manga.GetManga(ctx, req.MangaID)
	if err != nil {
		return stats, err
	}

	chapters, err := d.chapters.ListChapters(ctx, manga.ID, req.Languages, req.Volumes, req.Chapters)
	if err != nil {
		return stats, err
	}

	return d.run(ctx, plan{
		manga:       manga,
		chapters:    catalog.SelectVariants(chapters, req.Languages, req.Groups),
		dataSaver:   req.DataSaver,
		legacyRoots: req.LegacyRoots,
	})
}

// DownloadChapterRange downloads the chapters numbered start to end, both included.
func (d *Downloader) DownloadChapterRange(ctx context.Context, mangaID string, start, end float64, language string, dataSaver bool) (domain.DownloadStats, error) {
	stats := domain.DownloadStats{MangaID: mangaID}

	d.log.Debug().Str("manga", mangaID).Str("state", stateResolving).Msgf("resolving chapters %s to %s",
		domain.FormatNumber(start), domain.FormatNumber(end))

	manga, err := d.manga.GetManga(ctx, mangaID)
	if err != nil {
		return stats, err
	}

	chapters, err := d.chapters.ChapterRange(ctx, manga.ID, start, end, language)
	if err != nil {
		return stats, err
	}

	var languages []string
	if language != "" {
		languages = []string{language}
	}

	return d.run(ctx, plan{
		manga:     manga,
		chapters:  catalog.SelectVariants(chapters, languages, nil),
		dataSaver: dataSaver,
	})
}

// DownloadChapter downloads a single chapter by id into the folder of its manga.
func (d *Downloader) DownloadChapter(ctx context.Context, chapterID string, dataSaver bool) (domain.DownloadStats, error) {
	d.log.Debug().Str("chapter", chapterID).Str("state", stateResolving).Msg("resolving chapter")

	chapter, err := d.manga.GetChapter(ctx, chapterID)
	if err != nil {
		return domain.DownloadStats{}, err
	}

	manga, err := d.manga.GetManga(ctx, chapter.MangaID)
	if err != nil {
		return domain.DownloadStats{MangaID: chapter.MangaID}, err
	}

	return d.run(ctx, plan{
		manga:     manga,
		chapters:  []domain.Chapter{chapter},
		dataSaver: dataSaver,
	})
}

// chapterJob collects the outcome of one chapter. Workers only touch the atomics
// and the error, the rest is owned by the scheduling loop.
type chapterJob struct {
	chapter       domain.Chapter
	dir           string
	complete      bool
	interrupted   bool
	imagesSkipped int
	scheduled     int

	downloaded atomic.Int64
	failed     atomic.Int64

	mu  sync.Mutex
	err error
}

func (j *chapterJob) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.err == nil {
		j.err = err
	}
}

func (j *chapterJob) failure() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.err
}

func chapterResource(ch domain.Chapter) string {
	return fmt.Sprintf("chapter %s (vol %s, ch %s)", ch.ID, ch.Volume, ch.Number)
}

func downloadError(ch domain.Chapter, cause error, format string, args ...any) error {
	return &domain.Error{
		Kind:     domain.KindDownload,
		Resource: chapterResource(ch),
		Message:  fmt.Sprintf(format, args...),
		Err:      cause,
	}
}

func (d *Downloader) run(ctx context.Context, p plan) (domain.DownloadStats, error) {
	title := mirror.FolderTitle(p.manga)
	log := d.log.With().Str("manga", title).Logger()

	stats := domain.DownloadStats{
		MangaID:       p.manga.ID,
		MangaTitle:    title,
		TotalChapters: len(p.chapters),
	}

	// reconciliation finishes before the first page is written into the tree
	if d.opts.Reconcile {
		log.Debug().Str("state", stateReconciling).Msg("reconciling folder layout")

		if _, err := d.store.Reconcile(ctx, title, p.chapters, p.legacyRoots); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Error().Err(err).Msg("could not reconcile folder layout")
		}
	}

	log.Debug().Str("state", statePlanning).Msgf("planning %d chapters", len(p.chapters))

	jobs := make([]*chapterJob, 0, len(p.chapters))
	for _, ch := range p.chapters {
		jobs = append(jobs, &chapterJob{chapter: ch, dir: d.store.ChapterDir(title, ch)})
	}

	log.Debug().Str("state", stateFetching).Msg("fetching pages")

	var g errgroup.Group
	g.SetLimit(d.opts.MaxWorkers)

	resolved := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			job.interrupted = true
			continue
		}

		// complete per feed page count, no API call needed
		if job.chapter.Pages > 0 {
			missing, err := d.store.MissingPages(job.dir, job.chapter.Pages)
			if err == nil && len(missing) == 0 {
				job.complete = true
				job.imagesSkipped = job.chapter.Pages
				log.Debug().Msgf("chapter %s is complete, skipping", job.chapter.Number)
				continue
			}
		}

		if resolved > 0 && !d.wait(ctx) {
			job.interrupted = true
			continue
		}
		resolved++

		m, err := d.manifests.GetManifest(ctx, job.chapter.ID)
		if err != nil {
			if ctx.Err() != nil {
				job.interrupted = true
				continue
			}
			job.fail(downloadError(job.chapter, err, "could not resolve image manifest"))
			continue
		}

		urls, err := manifest.ImageURLs(m, p.dataSaver)
		if err != nil {
			job.fail(downloadError(job.chapter, err, "no pages to download"))
			continue
		}

		missing, err := d.store.MissingPages(job.dir, len(urls))
		if err != nil {
			job.fail(downloadError(job.chapter, err, "could not check downloaded pages"))
			continue
		}

		job.imagesSkipped = len(urls) - len(missing)
		if len(missing) == 0 {
			job.complete = true
			continue
		}

		log.Info().Msgf("downloading chapter %s: %d of %d pages", job.chapter.Number, len(missing), len(urls))

		for _, index := range missing {
			if ctx.Err() != nil {
				job.interrupted = true
				break
			}

			job.scheduled++
			g.Go(d.pageTask(ctx, job, index, urls[index-1]))
		}
	}

	_ = g.Wait()

	log.Debug().Str("state", stateSummarizing).Msg("summarizing")

	for _, job := range jobs {
		stats.ImagesDownloaded += int(job.downloaded.Load())
		stats.ImagesSkipped += job.imagesSkipped
		d.opts.Recorder.PagesDone(metrics.ResultDownloaded, int(job.downloaded.Load()))
		d.opts.Recorder.PagesDone(metrics.ResultSkipped, job.imagesSkipped)
		d.opts.Recorder.PagesDone(metrics.ResultFailed, int(job.failed.Load()))

		switch {
		case job.failure() != nil:
			err := job.failure()
			stats.Failed++
			stats.Failures = append(stats.Failures, domain.ChapterFailure{
				ChapterID: job.chapter.ID,
				Volume:    job.chapter.Volume,
				Number:    job.chapter.Number,
				Err:       err,
			})
			d.opts.Recorder.ChapterDone(metrics.ResultFailed)
			log.Error().Err(err).Msgf("chapter %s failed", job.chapter.Number)

		case job.complete:
			stats.Skipped++
			d.opts.Recorder.ChapterDone(metrics.ResultSkipped)

		case job.interrupted:

		case job.scheduled > 0 && int(job.downloaded.Load()) == job.scheduled:
			stats.Downloaded++
			d.opts.Recorder.ChapterDone(metrics.ResultDownloaded)
		}
	}

	log.Info().Str("state", stateDone).Msgf("%d chapters: %d downloaded, %d skipped, %d failed, %d images downloaded",
		stats.TotalChapters, stats.Downloaded, stats.Skipped, stats.Failed, stats.ImagesDownloaded)

	return stats, ctx.Err()
}

// pageTask fetches and stores one page. A fetch that has started is finished even
// when ctx is cancelled, so no page is left half written.
func (d *Downloader) pageTask(ctx context.Context, job *chapterJob, index int, imageURL string) func() error {
	return func() error {
		fetchCtx := context.WithoutCancel(ctx)

		d.opts.Recorder.PageStarted()

		page, err := d.fetcher.Fetch(fetchCtx, imageURL)
		if err != nil {
			d.opts.Recorder.PageFinished(0)
			job.failed.Add(1)
			job.fail(downloadError(job.chapter, err, "page %d", index))
			return nil
		}

		if _, err := d.store.WritePage(job.dir, index, page.Ext, page.Data); err != nil {
			d.opts.Recorder.PageFinished(0)
			job.failed.Add(1)
			job.fail(downloadError(job.chapter, err, "could not write page %d", index))
			return nil
		}

		d.opts.Recorder.PageFinished(len(page.Data))
		job.downloaded.Add(1)
		return nil
	}
}

// wait pauses between manifest requests. It reports false when ctx ends first.
func (d *Downloader) wait(ctx context.Context) bool {
	if d.opts.ChapterDelay <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d.opts.ChapterDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type nopRecorder struct{}

func (nopRecorder) ChapterDone(string)    {}
func (nopRecorder) PagesDone(string, int) {}
func (nopRecorder) PageStarted()          {}
func (nopRecorder) PageFinished(int)      {}
