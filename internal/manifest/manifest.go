package manifest

import (
	"context"
	"net/url"

	"mangasync/internal/domain"

	"github.com/rs/zerolog"
)

const (
	QualityData      = "data"
	QualityDataSaver = "data-saver"
)

// Source fetches the at-home manifest of a chapter.
type Source interface {
	AtHomeServer(ctx context.Context, chapterID string, forcePort443 bool) (domain.ImageManifest, error)
}

type Resolver struct {
	api          Source
	forcePort443 bool
	log          zerolog.Logger
}

func New(api Source, forcePort443 bool, log zerolog.Logger) *Resolver {
	return &Resolver{
		api:          api,
		forcePort443: forcePort443,
		log:          log.With().Str("module", "manifest").Logger(),
	}
}

// GetManifest resolves the manifest of a chapter. Every call hits the API.
func (r *Resolver) GetManifest(ctx context.Context, chapterID string) (domain.ImageManifest, error) {
	m, err := r.api.AtHomeServer(ctx, chapterID, r.forcePort443)
	if err != nil {
		return domain.ImageManifest{}, err
	}

	if len(m.Data) == 0 && len(m.DataSaver) == 0 {
		return domain.ImageManifest{}, domain.NewError(domain.KindNotFound, "chapter "+chapterID, "chapter has no pages")
	}

	r.log.Trace().Str("chapter", chapterID).Msgf("resolved manifest with %d pages on %s", len(m.Data), m.BaseURL)

	return m, nil
}

// GetImageURLs returns the page URLs of a chapter in reading order.
func (r *Resolver) GetImageURLs(ctx context.Context, chapterID string, dataSaver bool) ([]string, error) {
	m, err := r.GetManifest(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	return ImageURLs(m, dataSaver)
}

// ImageURLs builds <base>/<data|data-saver>/<hash>/<file> for every page of m.
func ImageURLs(m domain.ImageManifest, dataSaver bool) ([]string, error) {
	files := m.Files(dataSaver)
	if len(files) == 0 {
		return nil, domain.NewError(domain.KindNotFound, "chapter "+m.ChapterID, "no pages for the requested quality")
	}

	quality := QualityData
	if dataSaver {
		quality = QualityDataSaver
	}

	urls := make([]string, 0, len(files))
	for _, file := range files {
		imageURL, err := url.JoinPath(m.BaseURL, quality, m.Hash, file)
		if err != nil {
			return nil, &domain.Error{Kind: domain.KindValidation, Resource: "chapter " + m.ChapterID, Message: "invalid image url", Err: err}
		}
		urls = append(urls, imageURL)
	}

	return urls, nil
}
