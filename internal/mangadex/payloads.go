package mangadex

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"mangasync/internal/domain"
	"mangasync/internal/transport"
)

type apiError struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type envelope[T any] struct {
	Result   string     `json:"result"`
	Response string     `json:"response"`
	Data     T          `json:"data"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
	Total    int        `json:"total"`
	Errors   []apiError `json:"errors"`
}

// decode parses an API envelope and turns result "error" into a *domain.Error.
func decode[T any](resp *transport.Response, resource string) (envelope[T], error) {
	var env envelope[T]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return env, &domain.Error{Kind: domain.KindValidation, Resource: resource, Message: "malformed response", Err: err}
	}

	if env.Result == "error" {
		return env, &domain.Error{
			Kind:       domain.KindAPI,
			StatusCode: resp.StatusCode,
			Resource:   resource,
			Message:    transport.ErrorDetail(resp.Body),
		}
	}

	return env, nil
}

// localized is a language code keyed string map. The API sends [] instead of {} when it is empty.
type localized map[string]string

func (l *localized) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		*l = localized{}
		return nil
	}

	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*l = m
	return nil
}

type relationship struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Related string `json:"related,omitempty"`
}

type tagEntity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name  localized `json:"name"`
		Group string    `json:"group"`
	} `json:"attributes"`
}

func (t tagEntity) toDomain() (domain.Tag, error) {
	if t.ID == "" {
		return domain.Tag{}, domain.NewError(domain.KindValidation, "tag", "missing id")
	}
	return domain.Tag{ID: t.ID, Name: t.Attributes.Name, Group: t.Attributes.Group}, nil
}

type mangaEntity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Title                        localized   `json:"title"`
		AltTitles                    []localized `json:"altTitles"`
		Description                  localized   `json:"description"`
		OriginalLanguage             string      `json:"originalLanguage"`
		LastVolume                   *string     `json:"lastVolume"`
		LastChapter                  *string     `json:"lastChapter"`
		PublicationDemographic       *string     `json:"publicationDemographic"`
		Status                       string      `json:"status"`
		Year                         *int        `json:"year"`
		ContentRating                string      `json:"contentRating"`
		Tags                         []tagEntity `json:"tags"`
		AvailableTranslatedLanguages []*string   `json:"availableTranslatedLanguages"`
	} `json:"attributes"`
	Relationships []relationship `json:"relationships"`
}

func (m mangaEntity) toDomain() (domain.Manga, error) {
	if m.ID == "" {
		return domain.Manga{}, domain.NewError(domain.KindValidation, "manga", "missing id")
	}
	if m.Type != "" && m.Type != "manga" {
		return domain.Manga{}, domain.NewError(domain.KindValidation, m.ID, "expected manga, got %s", m.Type)
	}

	a := m.Attributes
	manga := domain.Manga{
		ID:               m.ID,
		Title:            a.Title,
		Description:      a.Description,
		Status:           domain.Status(a.Status),
		ContentRating:    domain.ContentRating(a.ContentRating),
		OriginalLanguage: a.OriginalLanguage,
		Year:             a.Year,
		LastVolume:       deref(a.LastVolume),
		LastChapter:      deref(a.LastChapter),
		Demographic:      deref(a.PublicationDemographic),
	}
	if manga.Title == nil {
		manga.Title = map[string]string{}
	}

	for _, alt := range a.AltTitles {
		manga.AltTitles = append(manga.AltTitles, alt)
	}

	for _, lang := range a.AvailableTranslatedLanguages {
		if lang != nil && *lang != "" {
			manga.AvailableLanguages = append(manga.AvailableLanguages, *lang)
		}
	}

	for _, t := range a.Tags {
		tag, err := t.toDomain()
		if err != nil {
			return domain.Manga{}, err
		}
		manga.Tags = append(manga.Tags, tag)
	}

	for _, rel := range m.Relationships {
		switch rel.Type {
		case "author":
			manga.AuthorIDs = append(manga.AuthorIDs, rel.ID)
		case "artist":
			manga.ArtistIDs = append(manga.ArtistIDs, rel.ID)
		case "cover_art":
			manga.CoverID = rel.ID
		}
	}

	return manga, nil
}

type chapterEntity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Volume             *string `json:"volume"`
		Chapter            *string `json:"chapter"`
		Title              *string `json:"title"`
		TranslatedLanguage string  `json:"translatedLanguage"`
		ExternalURL        *string `json:"externalUrl"`
		PublishAt          string  `json:"publishAt"`
		Pages              int     `json:"pages"`
	} `json:"attributes"`
	Relationships []relationship `json:"relationships"`
}

func (c chapterEntity) toDomain() (domain.Chapter, error) {
	if c.ID == "" {
		return domain.Chapter{}, domain.NewError(domain.KindValidation, "chapter", "missing id")
	}
	if c.Type != "" && c.Type != "chapter" {
		return domain.Chapter{}, domain.NewError(domain.KindValidation, c.ID, "expected chapter, got %s", c.Type)
	}
	if c.Attributes.TranslatedLanguage == "" {
		return domain.Chapter{}, domain.NewError(domain.KindValidation, c.ID, "missing translated language")
	}

	a := c.Attributes
	chapter := domain.Chapter{
		ID:          c.ID,
		Volume:      domain.NormalizeLabel(a.Volume),
		Number:      domain.NormalizeLabel(a.Chapter),
		Title:       a.Title,
		Language:    a.TranslatedLanguage,
		Pages:       a.Pages,
		ExternalURL: deref(a.ExternalURL),
	}

	if a.PublishAt != "" {
		if t, err := time.Parse(time.RFC3339, a.PublishAt); err == nil {
			chapter.PublishAt = t
		}
	}

	for _, rel := range c.Relationships {
		switch rel.Type {
		case "manga":
			chapter.MangaID = rel.ID
		case "scanlation_group":
			chapter.GroupIDs = append(chapter.GroupIDs, rel.ID)
		}
	}

	return chapter, nil
}

type authorEntity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name      string    `json:"name"`
		Biography localized `json:"biography"`
		Twitter   *string   `json:"twitter"`
		Website   *string   `json:"website"`
	} `json:"attributes"`
}

func (a authorEntity) toDomain() (domain.Author, error) {
	if a.ID == "" {
		return domain.Author{}, domain.NewError(domain.KindValidation, "author", "missing id")
	}
	return domain.Author{
		ID:        a.ID,
		Name:      a.Attributes.Name,
		Biography: a.Attributes.Biography,
		Twitter:   deref(a.Attributes.Twitter),
		Website:   deref(a.Attributes.Website),
	}, nil
}

type coverEntity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		FileName    string  `json:"fileName"`
		Volume      *string `json:"volume"`
		Locale      string  `json:"locale"`
		Description string  `json:"description"`
	} `json:"attributes"`
	Relationships []relationship `json:"relationships"`
}

func (c coverEntity) toDomain() (domain.Cover, error) {
	if c.ID == "" || c.Attributes.FileName == "" {
		return domain.Cover{}, domain.NewError(domain.KindValidation, "cover", "missing id or file name")
	}

	cover := domain.Cover{
		ID:          c.ID,
		FileName:    c.Attributes.FileName,
		Volume:      domain.NormalizeLabel(c.Attributes.Volume),
		Locale:      c.Attributes.Locale,
		Description: c.Attributes.Description,
	}
	for _, rel := range c.Relationships {
		if rel.Type == "manga" {
			cover.MangaID = rel.ID
		}
	}
	return cover, nil
}

type groupEntity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name        string  `json:"name"`
		Website     *string `json:"website"`
		Description *string `json:"description"`
		Official    bool    `json:"official"`
	} `json:"attributes"`
}

func (g groupEntity) toDomain() (domain.ScanlationGroup, error) {
	if g.ID == "" {
		return domain.ScanlationGroup{}, domain.NewError(domain.KindValidation, "scanlation group", "missing id")
	}
	return domain.ScanlationGroup{
		ID:          g.ID,
		Name:        g.Attributes.Name,
		Website:     deref(g.Attributes.Website),
		Description: deref(g.Attributes.Description),
		Official:    g.Attributes.Official,
	}, nil
}

// aggregateVolumes decodes the aggregate volume map, which is [] when the manga has no chapters.
type aggregateVolumes map[string]struct {
	Volume   string              `json:"volume"`
	Count    int                 `json:"count"`
	Chapters aggregateChapterMap `json:"chapters"`
}

func (v *aggregateVolumes) UnmarshalJSON(b []byte) error {
	type plain aggregateVolumes
	return unmarshalMapOrList(b, (*plain)(v))
}

type aggregateChapterMap map[string]struct {
	Chapter string   `json:"chapter"`
	ID      string   `json:"id"`
	Others  []string `json:"others"`
	Count   int      `json:"count"`
}

func (c *aggregateChapterMap) UnmarshalJSON(b []byte) error {
	type plain aggregateChapterMap
	return unmarshalMapOrList(b, (*plain)(c))
}

// unmarshalMapOrList accepts an object or an array of values (keyed by their index).
func unmarshalMapOrList[M ~map[string]V, V any](b []byte, out *M) error {
	trimmed := bytes.TrimSpace(b)
	if !bytes.HasPrefix(trimmed, []byte("[")) {
		m := M{}
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return err
		}
		*out = m
		return nil
	}

	var list []V
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	m := make(M, len(list))
	for i, item := range list {
		m[strconv.Itoa(i)] = item
	}
	*out = m
	return nil
}

type aggregateResponse struct {
	Result  string           `json:"result"`
	Volumes aggregateVolumes `json:"volumes"`
}

func (r aggregateResponse) toDomain() domain.Aggregate {
	agg := domain.Aggregate{Volumes: make(map[string]domain.AggregateVolume, len(r.Volumes))}
	for key, vol := range r.Volumes {
		label := vol.Volume
		if label == "" {
			label = key
		}
		label = domain.NormalizeLabel(&label)

		av := domain.AggregateVolume{
			Volume:   label,
			Count:    vol.Count,
			Chapters: make(map[string]domain.AggregateChapter, len(vol.Chapters)),
		}
		for ckey, ch := range vol.Chapters {
			num := ch.Chapter
			if num == "" {
				num = ckey
			}
			num = domain.NormalizeLabel(&num)
			av.Chapters[num] = domain.AggregateChapter{
				Chapter: num,
				ID:      ch.ID,
				Others:  ch.Others,
				Count:   ch.Count,
			}
		}
		agg.Volumes[label] = av
	}
	return agg
}

type atHomeResponse struct {
	Result  string `json:"result"`
	BaseURL string `json:"baseUrl"`
	Chapter struct {
		Hash      string   `json:"hash"`
		Data      []string `json:"data"`
		DataSaver []string `json:"dataSaver"`
	} `json:"chapter"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
