package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mangasync/internal/domain"
	"mangasync/internal/ratelimit"
	"mangasync/internal/sharedhttp"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

// Observer receives request outcomes, e.g. for metrics.
type Observer interface {
	ObserveRequest(method string, status int, duration time.Duration)
	ObserveRetry(kind domain.ErrorKind)
}

type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxBackoff time.Duration
	Observer   Observer
	HTTPClient *http.Client
}

// Client sends API requests through a shared rate limiter and retries the ones that may succeed later.
type Client struct {
	baseURL    string
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	maxBackoff time.Duration
	client     *http.Client
	limiter    *ratelimit.Limiter
	observer   Observer
	log        zerolog.Logger
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func New(limiter *ratelimit.Limiter, opts Options, log zerolog.Logger) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = sharedhttp.NewClient(opts.Timeout)
	}

	if opts.UserAgent == "" {
		opts.UserAgent = "mangasync"
	}

	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		maxRetries: max(opts.MaxRetries, 0),
		retryDelay: opts.RetryDelay,
		maxBackoff: opts.MaxBackoff,
		client:     client,
		limiter:    limiter,
		observer:   opts.Observer,
		log:        log.With().Str("module", "transport").Logger(),
	}
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, query, nil)
}

// Request sends one API request. Throttled, retried and classified into *domain.Error.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &domain.Error{Kind: domain.KindValidation, Resource: path, Message: "could not encode request body", Err: err}
		}
		payload = b
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var resp *Response

	err := retry.Do(func() error {
		var reqErr error
		if err := c.limiter.Do(ctx, func() error {
			resp, reqErr = c.do(ctx, method, endpoint, path, payload)
			return nil
		}); err != nil {
			return retry.Unrecoverable(err)
		}

		if reqErr != nil && !domain.IsRetryable(reqErr) {
			return retry.Unrecoverable(reqErr)
		}
		return reqErr
	},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.LastErrorOnly(true),
		retry.DelayType(c.retryDelayFor),
		retry.OnRetry(func(n uint, err error) {
			if !domain.IsRetryable(err) || int(n) >= c.maxRetries {
				return
			}
			c.log.Warn().Err(err).Msgf("%s %s failed, retry %d/%d", method, path, n+1, c.maxRetries)
			if c.observer != nil {
				c.observer.ObserveRetry(domain.KindOf(err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// retryDelayFor honours Retry-After on rate limits and backs off exponentially otherwise.
func (c *Client) retryDelayFor(n uint, err error, _ *retry.Config) time.Duration {
	var e *domain.Error
	if errors.As(err, &e) && e.Kind == domain.KindRateLimit {
		if e.RetryAfter > 0 {
			return e.RetryAfter
		}
		return c.retryDelay
	}

	delay := c.retryDelay << n
	if delay <= 0 || delay > c.maxBackoff {
		return c.maxBackoff
	}
	return delay
}

func (c *Client) do(ctx context.Context, method, endpoint, path string, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Resource: path, Message: "could not create request", Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.client.Do(req)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveRequest(method, 0, time.Since(start))
		}
		return nil, classifyTransportError(path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if c.observer != nil {
		c.observer.ObserveRequest(method, httpResp.StatusCode, time.Since(start))
	}
	if err != nil {
		return nil, classifyTransportError(path, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}

	if err := classifyStatus(path, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func classifyTransportError(path string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.Error{Kind: domain.KindTimeout, Resource: path, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.Error{Kind: domain.KindNetwork, Resource: path, Message: "request failed", Err: err}
}

func classifyStatus(path string, resp *Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	e := &domain.Error{
		StatusCode: code,
		Resource:   path,
		Message:    ErrorDetail(resp.Body),
	}

	switch {
	case code == http.StatusTooManyRequests:
		e.Kind = domain.KindRateLimit
		e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		if e.RetryAfter == 0 {
			e.RetryAfter = parseRateLimitReset(resp.Header.Get("X-RateLimit-Retry-After"), time.Now())
		}
	case code == http.StatusBadRequest:
		e.Kind = domain.KindValidation
	case code == http.StatusUnauthorized:
		e.Kind = domain.KindAuthentication
	case code == http.StatusForbidden:
		e.Kind = domain.KindAuthorization
	case code == http.StatusNotFound:
		e.Kind = domain.KindNotFound
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		e.Kind = domain.KindTimeout
	case code >= 500:
		e.Kind = domain.KindServer
	default:
		e.Kind = domain.KindAPI
	}

	if e.Message == "" {
		e.Message = http.StatusText(code)
	}

	return e
}

// ErrorDetail extracts errors[0].detail (or title, or message) from an error body.
func ErrorDetail(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Errors  []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Errors) > 0 {
		if payload.Errors[0].Detail != "" {
			return payload.Errors[0].Detail
		}
		return payload.Errors[0].Title
	}

	return payload.Message
}

// ParseRetryAfter reads a Retry-After value given in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

// parseRateLimitReset reads the unix timestamp the API sends once a bucket is exhausted.
func parseRateLimitReset(value string, now time.Time) time.Duration {
	ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ts <= 0 {
		return 0
	}
	if d := time.Unix(ts, 0).Sub(now); d > 0 {
		return d
	}
	return 0
}
