package mangadex

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"mangasync/internal/domain"
)

const (
	DefaultFeedLimit = 100
	MaxFeedLimit     = 500
	MaxSearchLimit   = 100
)

type SearchParams struct {
	Title             string
	Limit             int
	Offset            int
	ContentRatings    []string
	Status            []string
	Demographics      []string
	OriginalLanguages []string
	AvailableLanguage []string
	IncludedTags      []string
	ExcludedTags      []string
	Year              int
	// OrderBy is one of relevance, latestUploadedChapter, followedCount, title, year
	OrderBy string
}

type SearchResult struct {
	Manga  []domain.Manga
	Limit  int
	Offset int
	Total  int
}

// Search queries the manga list endpoint.
func (c *Client) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	q := url.Values{}
	if p.Title != "" {
		q.Set("title", p.Title)
	}

	limit := p.Limit
	if limit <= 0 || limit > MaxSearchLimit {
		limit = 10
	}
	q.Set("limit", strconv.Itoa(limit))
	setInt(q, "offset", p.Offset)
	setStrings(q, "contentRating[]", p.ContentRatings)
	setStrings(q, "status[]", p.Status)
	setStrings(q, "publicationDemographic[]", p.Demographics)
	setStrings(q, "originalLanguage[]", p.OriginalLanguages)
	setStrings(q, "availableTranslatedLanguage[]", p.AvailableLanguage)
	setStrings(q, "includedTags[]", p.IncludedTags)
	setStrings(q, "excludedTags[]", p.ExcludedTags)
	setInt(q, "year", p.Year)

	switch p.OrderBy {
	case "":
		if p.Title != "" {
			q.Set("order[relevance]", "desc")
		}
	case "title":
		q.Set("order[title]", "asc")
	default:
		q.Set("order["+p.OrderBy+"]", "desc")
	}

	resp, err := c.get(ctx, "manga", q)
	if err != nil {
		return SearchResult{}, err
	}

	env, err := decode[[]mangaEntity](resp, "manga search")
	if err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{Limit: env.Limit, Offset: env.Offset, Total: env.Total}
	for _, e := range env.Data {
		m, err := e.toDomain()
		if err != nil {
			return SearchResult{}, err
		}
		result.Manga = append(result.Manga, m)
	}

	return result, nil
}

// GetManga fetches one manga by id.
func (c *Client) GetManga(ctx context.Context, id string) (domain.Manga, error) {
	if err := ValidateID("manga", id); err != nil {
		return domain.Manga{}, err
	}

	resp, err := c.getCached(ctx, "manga/"+id, nil)
	if err != nil {
		return domain.Manga{}, err
	}

	env, err := decode[mangaEntity](resp, "manga "+id)
	if err != nil {
		return domain.Manga{}, err
	}

	return env.Data.toDomain()
}

// RandomManga returns a random manga limited to the given content ratings.
func (c *Client) RandomManga(ctx context.Context, ratings []string) (domain.Manga, error) {
	q := url.Values{}
	setStrings(q, "contentRating[]", ratings)

	resp, err := c.get(ctx, "manga/random", q)
	if err != nil {
		return domain.Manga{}, err
	}

	env, err := decode[mangaEntity](resp, "random manga")
	if err != nil {
		return domain.Manga{}, err
	}

	return env.Data.toDomain()
}

// Tags lists every tag known to the API.
func (c *Client) Tags(ctx context.Context) ([]domain.Tag, error) {
	resp, err := c.getCached(ctx, "manga/tag", nil)
	if err != nil {
		return nil, err
	}

	env, err := decode[[]tagEntity](resp, "manga tags")
	if err != nil {
		return nil, err
	}

	tags := make([]domain.Tag, 0, len(env.Data))
	for _, e := range env.Data {
		t, err := e.toDomain()
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}

	return tags, nil
}

// ResolveTags maps tag names (any language, case insensitive) or tag ids to tag ids.
func (c *Client) ResolveTags(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	tags, err := c.Tags(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		id := ""
		for _, t := range tags {
			if t.ID == name {
				id = t.ID
				break
			}
			for _, n := range t.Name {
				if strings.EqualFold(n, name) {
					id = t.ID
					break
				}
			}
			if id != "" {
				break
			}
		}

		if id == "" {
			return nil, domain.NewError(domain.KindNotFound, "tag "+name, "no tag with that name")
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// Aggregate returns the volume and chapter structure of a manga.
func (c *Client) Aggregate(ctx context.Context, mangaID string, languages []string, groups []string) (domain.Aggregate, error) {
	if err := ValidateID("manga", mangaID); err != nil {
		return domain.Aggregate{}, err
	}

	q := url.Values{}
	setStrings(q, "translatedLanguage[]", languages)
	setStrings(q, "groups[]", groups)

	resp, err := c.get(ctx, "manga/"+mangaID+"/aggregate", q)
	if err != nil {
		return domain.Aggregate{}, err
	}

	var agg aggregateResponse
	if err := decodeRaw(resp, "aggregate "+mangaID, &agg); err != nil {
		return domain.Aggregate{}, err
	}

	return agg.toDomain(), nil
}

type FeedParams struct {
	Languages       []string
	ContentRatings  []string
	Limit           int
	Offset          int
	IncludeExternal bool
}

type ChapterPage struct {
	Chapters []domain.Chapter
	Limit    int
	Offset   int
	Total    int
}

// Feed fetches one page of a manga's chapter feed.
func (c *Client) Feed(ctx context.Context, mangaID string, p FeedParams) (ChapterPage, error) {
	if err := ValidateID("manga", mangaID); err != nil {
		return ChapterPage{}, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	limit = min(limit, MaxFeedLimit)

	ratings := p.ContentRatings
	if len(ratings) == 0 {
		ratings = contentRatings(domain.AllContentRatings)
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(max(p.Offset, 0)))
	q.Set("order[volume]", "asc")
	q.Set("order[chapter]", "asc")
	setStrings(q, "translatedLanguage[]", p.Languages)
	setStrings(q, "contentRating[]", ratings)
	if p.IncludeExternal {
		q.Set("includeExternalUrl", "1")
	} else {
		q.Set("includeExternalUrl", "0")
	}

	resp, err := c.get(ctx, "manga/"+mangaID+"/feed", q)
	if err != nil {
		return ChapterPage{}, err
	}

	return decodeChapterPage(resp, "feed "+mangaID, mangaID)
}
