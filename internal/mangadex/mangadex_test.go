package mangadex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"mangasync/internal/domain"
	"mangasync/internal/ratelimit"
	"mangasync/internal/transport"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mangaID   = "f7888782-0727-49b0-95ec-a3530c70f83b"
	chapterID = "a54c491c-8e4c-4e97-8873-5b79e59da210"
	groupID   = "310361d7-52dd-4848-9b36-2eb4fcc95e83"
	authorID  = "0c4d1b5c-9e4c-4b8a-8f0b-4e0b5b6a2f31"
	coverID   = "8d7c2f43-3b6d-4bb4-9b5a-2d5e0a1e7c11"
)

type mockRequester struct {
	GetFunc func(path string, query url.Values) (*transport.Response, error)
	calls   []string
}

func (m *mockRequester) Get(_ context.Context, path string, query url.Values) (*transport.Response, error) {
	m.calls = append(m.calls, path)
	return m.GetFunc(path, query)
}

func ok(body string) (*transport.Response, error) {
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

const mangaBody = `{
  "result": "ok",
  "response": "entity",
  "data": {
    "id": "` + mangaID + `",
    "type": "manga",
    "attributes": {
      "title": {"en": "Silent Witch"},
      "altTitles": [{"ja": "サイレント・ウィッチ"}, {"ja-ro": "Silent Witch: Chinmoku no Majo no Kakushigoto"}],
      "description": [],
      "originalLanguage": "ja",
      "lastVolume": null,
      "lastChapter": "",
      "publicationDemographic": "shoujo",
      "status": "ongoing",
      "year": 2021,
      "contentRating": "safe",
      "tags": [{"id": "tag-1", "type": "tag", "attributes": {"name": {"en": "Fantasy"}, "group": "genre"}}],
      "availableTranslatedLanguages": ["en", null, "ja"],
      "unknownField": 42
    },
    "relationships": [
      {"id": "` + authorID + `", "type": "author"},
      {"id": "` + authorID + `", "type": "artist"},
      {"id": "` + coverID + `", "type": "cover_art"}
    ]
  }
}`

func TestGetManga(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, _ url.Values) (*transport.Response, error) {
		assert.Equal(t, "manga/"+mangaID, path)
		return ok(mangaBody)
	}}

	m, err := New(req, zerolog.Nop()).GetManga(context.Background(), mangaID)
	require.NoError(t, err)

	assert.Equal(t, mangaID, m.ID)
	assert.Equal(t, "Silent Witch", m.Title["en"])
	assert.Len(t, m.AltTitles, 2)
	assert.Empty(t, m.Description)
	assert.Equal(t, domain.StatusOngoing, m.Status)
	assert.Equal(t, domain.ContentRatingSafe, m.ContentRating)
	assert.Equal(t, "shoujo", m.Demographic)
	require.NotNil(t, m.Year)
	assert.Equal(t, 2021, *m.Year)
	assert.Equal(t, []string{"en", "ja"}, m.AvailableLanguages)
	assert.Equal(t, []string{authorID}, m.AuthorIDs)
	assert.Equal(t, []string{authorID}, m.ArtistIDs)
	assert.Equal(t, coverID, m.CoverID)
	require.Len(t, m.Tags, 1)
	assert.Equal(t, "Fantasy", m.Tags[0].Name["en"])
}

func TestGetManga_InvalidIDNeverHitsTheNetwork(t *testing.T) {
	req := &mockRequester{GetFunc: func(string, url.Values) (*transport.Response, error) {
		t.Fatal("unexpected request")
		return nil, nil
	}}

	_, err := New(req, zerolog.Nop()).GetManga(context.Background(), "../chapter")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetManga_MissingIDFailsValidation(t *testing.T) {
	req := &mockRequester{GetFunc: func(string, url.Values) (*transport.Response, error) {
		return ok(`{"result":"ok","data":{"type":"manga","attributes":{"title":{"en":"x"}}}}`)
	}}

	_, err := New(req, zerolog.Nop()).GetManga(context.Background(), mangaID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetManga_WrongTypeFailsValidation(t *testing.T) {
	req := &mockRequester{GetFunc: func(string, url.Values) (*transport.Response, error) {
		return ok(`{"result":"ok","data":{"id":"` + mangaID + `","type":"chapter"}}`)
	}}

	_, err := New(req, zerolog.Nop()).GetManga(context.Background(), mangaID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetManga_ErrorResult(t *testing.T) {
	req := &mockRequester{GetFunc: func(string, url.Values) (*transport.Response, error) {
		return ok(`{"result":"error","errors":[{"status":400,"title":"bad","detail":"broken"}]}`)
	}}

	_, err := New(req, zerolog.Nop()).GetManga(context.Background(), mangaID)
	assert.ErrorIs(t, err, domain.ErrAPI)
	assert.Contains(t, err.Error(), "broken")
}

func TestGetManga_Cached(t *testing.T) {
	req := &mockRequester{GetFunc: func(string, url.Values) (*transport.Response, error) {
		return ok(mangaBody)
	}}

	c := New(req, zerolog.Nop(), WithCache(NewMemoryCache(time.Hour)))
	for i := 0; i < 3; i++ {
		_, err := c.GetManga(context.Background(), mangaID)
		require.NoError(t, err)
	}

	assert.Len(t, req.calls, 1)
}

func TestCache_Expires(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("k", []byte("v"))
	body, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), body)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.NoError(t, cache.Close())
}

func TestSearch(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, q url.Values) (*transport.Response, error) {
		assert.Equal(t, "manga", path)
		assert.Equal(t, "silent witch", q.Get("title"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, []string{"safe", "suggestive"}, q["contentRating[]"])
		assert.Equal(t, []string{"ongoing"}, q["status[]"])
		assert.Equal(t, "desc", q.Get("order[relevance]"))
		assert.Equal(t, "2021", q.Get("year"))
		return ok(`{"result":"ok","response":"collection","data":[` + extractData(mangaBody) + `],"limit":5,"offset":0,"total":1}`)
	}}

	res, err := New(req, zerolog.Nop()).Search(context.Background(), SearchParams{
		Title:          "silent witch",
		Limit:          5,
		ContentRatings: []string{"safe", "suggestive"},
		Status:         []string{"ongoing"},
		Year:           2021,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Manga, 1)
	assert.Equal(t, mangaID, res.Manga[0].ID)
}

func TestResolveTags(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, _ url.Values) (*transport.Response, error) {
		assert.Equal(t, "manga/tag", path)
		return ok(`{"result":"ok","data":[
			{"id":"t-action","type":"tag","attributes":{"name":{"en":"Action"},"group":"genre"}},
			{"id":"t-fantasy","type":"tag","attributes":{"name":{"en":"Fantasy"},"group":"genre"}}
		]}`)
	}}

	c := New(req, zerolog.Nop(), WithCache(NewMemoryCache(time.Hour)))

	ids, err := c.ResolveTags(context.Background(), []string{"fantasy", "t-action"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t-fantasy", "t-action"}, ids)

	_, err = c.ResolveTags(context.Background(), []string{"romance"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, req.calls, 1)
}

func TestFeed(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, q url.Values) (*transport.Response, error) {
		assert.Equal(t, "manga/"+mangaID+"/feed", path)
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "200", q.Get("offset"))
		assert.Equal(t, []string{"en"}, q["translatedLanguage[]"])
		assert.Len(t, q["contentRating[]"], 4)
		assert.Equal(t, "0", q.Get("includeExternalUrl"))
		return ok(`{"result":"ok","data":[
			{"id":"` + chapterID + `","type":"chapter","attributes":{"volume":null,"chapter":"1","title":"Start","translatedLanguage":"en","pages":12,"publishAt":"2021-05-01T10:00:00+00:00"},
			 "relationships":[{"id":"` + groupID + `","type":"scanlation_group"},{"id":"` + mangaID + `","type":"manga"}]},
			{"id":"c2","type":"chapter","attributes":{"volume":"2","chapter":null,"translatedLanguage":"en","pages":3}}
		],"limit":100,"offset":200,"total":202}`)
	}}

	page, err := New(req, zerolog.Nop()).Feed(context.Background(), mangaID, FeedParams{Languages: []string{"en"}, Offset: 200})
	require.NoError(t, err)

	assert.Equal(t, 202, page.Total)
	require.Len(t, page.Chapters, 2)

	first := page.Chapters[0]
	assert.Equal(t, domain.VolumeNone, first.Volume)
	assert.False(t, first.HasVolume())
	assert.Equal(t, "1", first.Number)
	assert.Equal(t, 12, first.Pages)
	assert.Equal(t, []string{groupID}, first.GroupIDs)
	assert.Equal(t, mangaID, first.MangaID)
	assert.Equal(t, 2021, first.PublishAt.Year())

	second := page.Chapters[1]
	assert.Equal(t, "2", second.Volume)
	assert.Equal(t, domain.VolumeNone, second.Number)
	assert.Equal(t, mangaID, second.MangaID)
}

func TestFeed_MissingLanguageFailsValidation(t *testing.T) {
	req := &mockRequester{GetFunc: func(string, url.Values) (*transport.Response, error) {
		return ok(`{"result":"ok","data":[{"id":"c1","type":"chapter","attributes":{"chapter":"1"}}],"total":1}`)
	}}

	_, err := New(req, zerolog.Nop()).Feed(context.Background(), mangaID, FeedParams{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAggregate(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, q url.Values) (*transport.Response, error) {
		assert.Equal(t, "manga/"+mangaID+"/aggregate", path)
		return ok(`{"result":"ok","volumes":{
			"none":{"volume":"none","count":1,"chapters":{"5":{"chapter":"5","id":"c5","others":[],"count":1}}},
			"1":{"volume":"1","count":2,"chapters":[{"chapter":"1","id":"c1","others":["c1b"],"count":2}]}
		}}`)
	}}

	agg, err := New(req, zerolog.Nop()).Aggregate(context.Background(), mangaID, []string{"en"}, nil)
	require.NoError(t, err)

	require.Len(t, agg.Volumes, 2)
	assert.Equal(t, "c5", agg.Volumes[domain.VolumeNone].Chapters["5"].ID)
	assert.Equal(t, []string{"c1b"}, agg.Volumes["1"].Chapters["1"].Others)
}

func TestAggregate_EmptyVolumesArray(t *testing.T) {
	req := &mockRequester{GetFunc: func(string, url.Values) (*transport.Response, error) {
		return ok(`{"result":"ok","volumes":[]}`)
	}}

	agg, err := New(req, zerolog.Nop()).Aggregate(context.Background(), mangaID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, agg.Volumes)
}

func TestAtHomeServer(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, q url.Values) (*transport.Response, error) {
		assert.Equal(t, "at-home/server/"+chapterID, path)
		assert.Equal(t, "true", q.Get("forcePort443"))
		return ok(`{"result":"ok","baseUrl":"https://node.example.org","chapter":{"hash":"abc","data":["1.png","2.png"],"dataSaver":["1.jpg","2.jpg"]}}`)
	}}

	m, err := New(req, zerolog.Nop()).AtHomeServer(context.Background(), chapterID, true)
	require.NoError(t, err)

	assert.Equal(t, "https://node.example.org", m.BaseURL)
	assert.Equal(t, "abc", m.Hash)
	assert.Equal(t, []string{"1.png", "2.png"}, m.Files(false))
	assert.Equal(t, []string{"1.jpg", "2.jpg"}, m.Files(true))
}

func TestGetChapter(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, _ url.Values) (*transport.Response, error) {
		assert.Equal(t, "chapter/"+chapterID, path)
		return ok(`{"result":"ok","data":{"id":"` + chapterID + `","type":"chapter","attributes":{"volume":"3","chapter":"12.5","translatedLanguage":"ja","pages":20},
			"relationships":[{"id":"` + mangaID + `","type":"manga"}]}}`)
	}}

	ch, err := New(req, zerolog.Nop()).GetChapter(context.Background(), chapterID)
	require.NoError(t, err)
	assert.Equal(t, "3", ch.Volume)
	assert.Equal(t, "12.5", ch.Number)
	assert.Equal(t, mangaID, ch.MangaID)

	n, ok := ch.NumericNumber()
	assert.True(t, ok)
	assert.Equal(t, 12.5, n)
}

func TestListChapters(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, q url.Values) (*transport.Response, error) {
		assert.Equal(t, "chapter", path)
		assert.Equal(t, []string{chapterID}, q["ids[]"])
		return ok(`{"result":"ok","data":[{"id":"` + chapterID + `","type":"chapter","attributes":{"chapter":"1","translatedLanguage":"en"}}],"total":1}`)
	}}

	page, err := New(req, zerolog.Nop()).ListChapters(context.Background(), ChapterListParams{IDs: []string{chapterID}})
	require.NoError(t, err)
	assert.Len(t, page.Chapters, 1)
}

func TestAuthorsCoversGroups(t *testing.T) {
	req := &mockRequester{GetFunc: func(path string, q url.Values) (*transport.Response, error) {
		switch path {
		case "author/" + authorID:
			return ok(`{"result":"ok","data":{"id":"` + authorID + `","type":"author","attributes":{"name":"Matsuri Isora","biography":[],"twitter":null}}}`)
		case "author":
			return ok(`{"result":"ok","data":[{"id":"` + authorID + `","type":"author","attributes":{"name":"Matsuri Isora"}}]}`)
		case "cover":
			assert.Equal(t, mangaID, q.Get("manga[]"))
			return ok(`{"result":"ok","data":[{"id":"` + coverID + `","type":"cover_art","attributes":{"fileName":"cover.jpg","volume":"1","locale":"ja"}}]}`)
		case "cover/" + coverID:
			return ok(`{"result":"ok","data":{"id":"` + coverID + `","type":"cover_art","attributes":{"fileName":"cover.jpg","volume":null},"relationships":[{"id":"` + mangaID + `","type":"manga"}]}}`)
		case "group/" + groupID:
			return ok(`{"result":"ok","data":{"id":"` + groupID + `","type":"scanlation_group","attributes":{"name":"Witch Scans","official":false}}}`)
		case "group":
			return ok(`{"result":"ok","data":[{"id":"` + groupID + `","type":"scanlation_group","attributes":{"name":"Witch Scans"}}]}`)
		}
		t.Fatalf("unexpected path %s", path)
		return nil, nil
	}}

	c := New(req, zerolog.Nop(), WithUploadsURL("https://uploads.example.org/"))
	ctx := context.Background()

	author, err := c.GetAuthor(ctx, authorID)
	require.NoError(t, err)
	assert.Equal(t, "Matsuri Isora", author.Name)

	authors, err := c.ListAuthors(ctx, []string{authorID}, "")
	require.NoError(t, err)
	assert.Len(t, authors, 1)

	covers, err := c.ListCovers(ctx, mangaID)
	require.NoError(t, err)
	require.Len(t, covers, 1)
	assert.Equal(t, "https://uploads.example.org/covers/"+mangaID+"/cover.jpg.256.jpg", c.CoverURL(covers[0], 256))

	cover, err := c.GetCover(ctx, coverID)
	require.NoError(t, err)
	assert.Equal(t, domain.VolumeNone, cover.Volume)
	assert.Equal(t, "https://uploads.example.org/covers/"+mangaID+"/cover.jpg", c.CoverURL(cover, 0))

	group, err := c.GetGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, "Witch Scans", group.Name)

	groups, err := c.ListGroups(ctx, []string{groupID}, "")
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestClient_OverTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/manga/"+mangaID {
			_, _ = w.Write([]byte(mangaBody))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"result":"error","errors":[{"status":404,"title":"Not found","detail":"Chapter could not be found"}]}`))
	}))
	defer srv.Close()

	api := transport.New(ratelimit.New(time.Millisecond), transport.Options{BaseURL: srv.URL, MaxRetries: 1, RetryDelay: time.Millisecond}, zerolog.Nop())
	c := New(api, zerolog.Nop())

	m, err := c.GetManga(context.Background(), mangaID)
	require.NoError(t, err)
	assert.Equal(t, "Silent Witch", m.Title["en"])

	_, err = c.GetChapter(context.Background(), chapterID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "Chapter could not be found")
}

// extractData cuts the data object out of a single entity body.
func extractData(body string) string {
	const marker = `"data": `
	start := strings.Index(body, marker) + len(marker)
	return strings.TrimSuffix(strings.TrimSpace(body[start:]), "}")
}
