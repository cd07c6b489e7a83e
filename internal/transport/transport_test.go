package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"mangasync/internal/domain"
	"mangasync/internal/ratelimit"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, maxRetries int) *Client {
	return New(ratelimit.New(time.Millisecond), Options{
		BaseURL:    baseURL,
		UserAgent:  "mangasync-test",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		RetryDelay: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, zerolog.Nop())
}

func TestRequest_SendsUserAgentAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mangasync-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "/manga", r.URL.Path)
		assert.Equal(t, []string{"en", "ja"}, r.URL.Query()["translatedLanguage[]"])
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	resp, err := c.Get(context.Background(), "/manga", url.Values{"translatedLanguage[]": {"en", "ja"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"result":"ok"}`, string(resp.Body))
}

func TestRequest_PostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	resp, err := c.Request(context.Background(), http.MethodPost, "report", nil, map[string]string{"reason": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRequest_RateLimitHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)

	start := time.Now()
	_, err := c.Get(context.Background(), "manga", nil)
	require.NoError(t, err)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 3*time.Second)
	assert.Less(t, elapsed, 6*time.Second, "slept more than once")
	assert.Equal(t, int32(2), calls.Load())
}

func TestRequest_RateLimitExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0.01")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"result":"error","errors":[{"title":"Too Many Requests","detail":"slow down"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	_, err := c.Get(context.Background(), "manga", nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Equal(t, int32(3), calls.Load())

	var e *domain.Error
	require.ErrorAs(t, err, &e)
	assert.InDelta(t, float64(10*time.Millisecond), float64(e.RetryAfter), float64(time.Microsecond))
	assert.Equal(t, "slow down", e.Message)
}

func TestRequest_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.Get(context.Background(), "manga", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequest_ServerErrorExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	_, err := c.Get(context.Background(), "manga", nil)
	assert.ErrorIs(t, err, domain.ErrServer)
}

func TestRequest_NotRetried(t *testing.T) {
	tests := []struct {
		status int
		want   *domain.Error
	}{
		{status: http.StatusBadRequest, want: domain.ErrValidation},
		{status: http.StatusUnauthorized, want: domain.ErrAuthentication},
		{status: http.StatusForbidden, want: domain.ErrAuthorization},
		{status: http.StatusNotFound, want: domain.ErrNotFound},
		{status: http.StatusConflict, want: domain.ErrAPI},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"result":"error","errors":[{"title":"bad","detail":"Manga with id x not found"}]}`))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL, 3)
			_, err := c.Get(context.Background(), "manga/x", nil)
			require.Error(t, err)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int32(1), calls.Load())
			assert.Contains(t, err.Error(), "Manga with id x not found")
			assert.Contains(t, err.Error(), "manga/x")
		})
	}
}

func TestRequest_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	c := newTestClient(baseURL, 1)
	_, err := c.Get(context.Background(), "manga", nil)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestRequest_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL, 3)
	_, err := c.Get(ctx, "manga", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingObserver struct {
	requests atomic.Int32
	retries  atomic.Int32
}

func (o *recordingObserver) ObserveRequest(string, int, time.Duration) { o.requests.Add(1) }
func (o *recordingObserver) ObserveRetry(domain.ErrorKind)              { o.retries.Add(1) }

func TestRequest_Observer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New(ratelimit.New(time.Millisecond), Options{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Observer:   obs,
	}, zerolog.Nop())

	_, err := c.Get(context.Background(), "manga", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), obs.requests.Load())
	assert.Equal(t, int32(1), obs.retries.Load())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3*time.Second, ParseRetryAfter("3", now))
	assert.Equal(t, 1500*time.Millisecond, ParseRetryAfter("1.5", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-1", now))
	assert.Equal(t, 10*time.Second, ParseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, 5*time.Second, parseRateLimitReset("1704110405", now))
}

func TestRetryDelayFor(t *testing.T) {
	c := newTestClient("http://localhost", 3)

	rateLimited := &domain.Error{Kind: domain.KindRateLimit, RetryAfter: 3 * time.Second}
	assert.Equal(t, 3*time.Second, c.retryDelayFor(0, rateLimited, nil))
	assert.Equal(t, 10*time.Millisecond, c.retryDelayFor(0, &domain.Error{Kind: domain.KindRateLimit}, nil))

	server := &domain.Error{Kind: domain.KindServer}
	assert.Equal(t, 10*time.Millisecond, c.retryDelayFor(0, server, nil))
	assert.Equal(t, 20*time.Millisecond, c.retryDelayFor(1, server, nil))
	assert.Equal(t, 40*time.Millisecond, c.retryDelayFor(2, server, nil))
	assert.Equal(t, 50*time.Millisecond, c.retryDelayFor(3, server, nil))
}
