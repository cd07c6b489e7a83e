package mangadex

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"mangasync/internal/domain"
	"mangasync/internal/transport"
)

type ChapterListParams struct {
	IDs       []string
	MangaID   string
	Groups    []string
	Languages []string
	Limit     int
	Offset    int
}

// ListChapters queries the chapter list endpoint.
func (c *Client) ListChapters(ctx context.Context, p ChapterListParams) (ChapterPage, error) {
	q := url.Values{}
	setStrings(q, "ids[]", p.IDs)
	setStrings(q, "groups[]", p.Groups)
	setStrings(q, "translatedLanguage[]", p.Languages)
	setStrings(q, "contentRating[]", contentRatings(domain.AllContentRatings))
	if p.MangaID != "" {
		if err := ValidateID("manga", p.MangaID); err != nil {
			return ChapterPage{}, err
		}
		q.Set("manga", p.MangaID)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	q.Set("limit", strconv.Itoa(min(limit, MaxSearchLimit)))
	setInt(q, "offset", p.Offset)

	resp, err := c.get(ctx, "chapter", q)
	if err != nil {
		return ChapterPage{}, err
	}

	return decodeChapterPage(resp, "chapter list", p.MangaID)
}

// GetChapter fetches one chapter by id.
func (c *Client) GetChapter(ctx context.Context, id string) (domain.Chapter, error) {
	if err := ValidateID("chapter", id); err != nil {
		return domain.Chapter{}, err
	}

	resp, err := c.get(ctx, "chapter/"+id, nil)
	if err != nil {
		return domain.Chapter{}, err
	}

	env, err := decode[chapterEntity](resp, "chapter "+id)
	if err != nil {
		return domain.Chapter{}, err
	}

	return env.Data.toDomain()
}

// AtHomeServer resolves the image manifest of a chapter. Never cached: the base URL expires.
func (c *Client) AtHomeServer(ctx context.Context, chapterID string, forcePort443 bool) (domain.ImageManifest, error) {
	if err := ValidateID("chapter", chapterID); err != nil {
		return domain.ImageManifest{}, err
	}

	var q url.Values
	if forcePort443 {
		q = url.Values{"forcePort443": {"true"}}
	}

	resp, err := c.get(ctx, "at-home/server/"+chapterID, q)
	if err != nil {
		return domain.ImageManifest{}, err
	}

	var ah atHomeResponse
	if err := decodeRaw(resp, "at-home "+chapterID, &ah); err != nil {
		return domain.ImageManifest{}, err
	}

	if ah.BaseURL == "" || ah.Chapter.Hash == "" {
		return domain.ImageManifest{}, domain.NewError(domain.KindNotFound, "chapter "+chapterID, "no image server available")
	}

	return domain.ImageManifest{
		ChapterID: chapterID,
		BaseURL:   ah.BaseURL,
		Hash:      ah.Chapter.Hash,
		Data:      ah.Chapter.Data,
		DataSaver: ah.Chapter.DataSaver,
	}, nil
}

func decodeChapterPage(resp *transport.Response, resource, mangaID string) (ChapterPage, error) {
	env, err := decode[[]chapterEntity](resp, resource)
	if err != nil {
		return ChapterPage{}, err
	}

	page := ChapterPage{Limit: env.Limit, Offset: env.Offset, Total: env.Total}
	for _, e := range env.Data {
		ch, err := e.toDomain()
		if err != nil {
			return ChapterPage{}, err
		}
		if ch.MangaID == "" {
			ch.MangaID = mangaID
		}
		page.Chapters = append(page.Chapters, ch)
	}

	return page, nil
}

// decodeRaw is decode for responses that do not use the data envelope.
func decodeRaw(resp *transport.Response, resource string, v any) error {
	var head struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &head); err != nil {
		return &domain.Error{Kind: domain.KindValidation, Resource: resource, Message: "malformed response", Err: err}
	}

	if head.Result == "error" {
		return &domain.Error{
			Kind:       domain.KindAPI,
			StatusCode: resp.StatusCode,
			Resource:   resource,
			Message:    transport.ErrorDetail(resp.Body),
		}
	}

	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &domain.Error{Kind: domain.KindValidation, Resource: resource, Message: "malformed response", Err: err}
	}

	return nil
}
