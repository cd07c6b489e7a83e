package mangadex

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"mangasync/internal/domain"
	"mangasync/internal/transport"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Requester is the rate limited transport the bindings send their requests through.
type Requester interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Response, error)
}

// Client exposes the read endpoints of the catalog API as typed calls.
type Client struct {
	api        Requester
	cache      *Cache
	uploadsURL string
	log        zerolog.Logger
}

type Option func(*Client)

// WithCache enables caching of manga, tag, author, cover and group lookups.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithUploadsURL(u string) Option {
	return func(c *Client) {
		c.uploadsURL = strings.TrimRight(u, "/")
	}
}

func New(api Requester, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		api:        api,
		uploadsURL: "https://uploads.mangadex.org",
		log:        log.With().Str("module", "mangadex").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ValidateID checks that id is a UUID before it is put into a request path.
func ValidateID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &domain.Error{Kind: domain.KindValidation, Resource: kind + " " + id, Message: "invalid id", Err: err}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*transport.Response, error) {
	return c.api.Get(ctx, path, query)
}

// getCached serves GET requests from the cache when it is enabled.
func (c *Client) getCached(ctx context.Context, path string, query url.Values) (*transport.Response, error) {
	if c.cache == nil {
		return c.get(ctx, path, query)
	}

	key := path
	if len(query) > 0 {
		key += "?" + query.Encode()
	}

	if body, ok := c.cache.Get(key); ok {
		c.log.Trace().Str("key", key).Msg("cache hit")
		return &transport.Response{StatusCode: 200, Body: body}, nil
	}

	resp, err := c.get(ctx, path, query)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, resp.Body)
	return resp, nil
}

func setStrings(q url.Values, key string, values []string) {
	for _, v := range values {
		if v != "" {
			q.Add(key, v)
		}
	}
}

func setInt(q url.Values, key string, v int) {
	if v > 0 {
		q.Set(key, strconv.Itoa(v))
	}
}

func contentRatings(ratings []domain.ContentRating) []string {
	out := make([]string, 0, len(ratings))
	for _, r := range ratings {
		out = append(out, string(r))
	}
	return out
}
