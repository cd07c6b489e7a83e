package download

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"mangasync/internal/sharedhttp"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
)

// Page is one downloaded image.
type Page struct {
	Data []byte
	Ext  string
}

type FetcherOptions struct {
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
	MaxBackoff time.Duration
}

// PageFetcher downloads page images from the image hosts. Image hosts are not
// rate limited like the API, so requests go out directly.
type PageFetcher struct {
	client    *http.Client
	userAgent string
	attempts  uint
	delay     time.Duration
	maxDelay  time.Duration
	jitter    time.Duration
	log       zerolog.Logger
}

func NewPageFetcher(client *http.Client, opts FetcherOptions, log zerolog.Logger) *PageFetcher {
	if client == nil {
		client = sharedhttp.NewClient(60 * time.Second)
	}

	attempts := uint(1)
	if opts.MaxRetries > 0 {
		attempts += uint(opts.MaxRetries)
	}

	// RandomDelay panics on a zero jitter
	jitter := max(opts.RetryDelay/4, time.Millisecond)

	return &PageFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		attempts:  attempts,
		delay:     opts.RetryDelay,
		maxDelay:  opts.MaxBackoff,
		jitter:    jitter,
		log:       log.With().Str("module", "page").Logger(),
	}
}

// Fetch downloads one image. Payloads that do not decode as an image are retried.
func (f *PageFetcher) Fetch(ctx context.Context, imageURL string) (Page, error) {
	var page Page

	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return retry.Unrecoverable(errors.Wrap(err, "failed to create request"))
		}

		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}

		resp, err := sharedhttp.ExecRequest(f.client, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(bufio.NewReader(resp.Body))
		if err != nil {
			return errors.Wrap(err, "failed to read image data")
		}

		if len(data) == 0 {
			return errors.New("image host returned an empty body")
		}

		_, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return errors.Wrap(err, "image data is corrupt")
		}

		ext, err := imageExtension(imageURL, resp.Header.Get("Content-Type"), format)
		if err != nil {
			return retry.Unrecoverable(err)
		}

		page = Page{Data: data, Ext: ext}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.MaxDelay(f.maxDelay),
		retry.MaxJitter(f.jitter),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if n+1 < f.attempts {
				f.log.Debug().Err(err).Msgf("retrying %s (%d/%d)", imageURL, n+1, f.attempts-1)
			}
		}),
	)
	if err != nil {
		return Page{}, err
	}

	return page, nil
}

// imageExtension takes the extension from the file name in the URL, then the
// Content-Type header, then the decoded image format.
func imageExtension(imageURL, contentType, format string) (string, error) {
	if u, err := url.Parse(imageURL); err == nil {
		if ext := normalizeExtension(path.Ext(u.Path)); ext != "" {
			return ext, nil
		}
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg", "image/jpg":
			return "jpg", nil
		case "image/png":
			return "png", nil
		case "image/gif":
			return "gif", nil
		case "image/webp":
			return "webp", nil
		}
	}

	if ext := normalizeExtension(format); ext != "" {
		return ext, nil
	}

	return "", fmt.Errorf("unsupported content type: %s", contentType)
}

func normalizeExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "jpg"
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	}
	return ""
}
