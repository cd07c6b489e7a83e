package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mangasync/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "mangasync"

const (
	ResultDownloaded = "downloaded"
	ResultSkipped    = "skipped"
	ResultFailed     = "failed"
)

// Collector holds the counters of one process. It observes API requests for the
// transport and chapter and page outcomes for the downloader.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	chapters        *prometheus.CounterVec
	pages           *prometheus.CounterVec
	bytes           prometheus.Counter
	inflight        prometheus.Gauge
	lastRun         prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by method and HTTP status, 0 when no response was received",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Time spent per API request attempt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "API request retries by error kind",
		}, []string{"kind"}),
		chapters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chapters_total",
			Help:      "Chapters processed by result",
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages processed by result",
		}, []string{"result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_bytes_total",
			Help:      "Bytes of page images written",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "page_downloads_inflight",
			Help:      "Page downloads in progress",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished sync run",
		}),
	}

	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.retries,
		c.chapters,
		c.pages,
		c.bytes,
		c.inflight,
		c.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveRequest(method string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (c *Collector) ObserveRetry(kind domain.ErrorKind) {
	c.retries.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) ChapterDone(result string) {
	c.chapters.WithLabelValues(result).Inc()
}

func (c *Collector) PagesDone(result string, n int) {
	if n <= 0 {
		return
	}
	c.pages.WithLabelValues(result).Add(float64(n))
}

func (c *Collector) PageStarted() {
	c.inflight.Inc()
}

// PageFinished records a finished page download and the bytes written, 0 on failure.
func (c *Collector) PageFinished(bytes int) {
	c.inflight.Dec()
	if bytes > 0 {
		c.bytes.Add(float64(bytes))
	}
}

func (c *Collector) RunFinished(at time.Time) {
	c.lastRun.Set(float64(at.Unix()))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down metrics server")
		}
	}()

	log.Info().Msgf("serving metrics on %s/metrics", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
