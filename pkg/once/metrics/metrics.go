package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/once/pkg/once"
)

const namespace = "once"

// Collector records service events as Prometheus metrics. It implements
// once.EventSink.
type Collector struct {
	registry *prometheus.Registry

	Tickets       *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
	Purges        *prometheus.CounterVec
	SweepDuration prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

var _ once.EventSink = (*Collector)(nil)

// New creates a Collector with its own registry
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		Tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_total",
			Help:      "Upload ticket requests by outcome",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Download link requests by outcome",
		}, []string{"result"}),
		Purges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "Served entries removed by the sweeper by outcome",
		}, []string{"result"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of cleanup sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.Tickets, c.Deliveries, c.Purges, c.SweepDuration, c.HTTPRequests, c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry holding the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests per chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSweep records the duration of a finished sweep
func (c *Collector) ObserveSweep(d time.Duration) {
	c.SweepDuration.Observe(d.Seconds())
}

func (c *Collector) TicketIssued(ctx context.Context, entry *once.Entry) {
	c.Tickets.WithLabelValues("issued").Inc()
}

func (c *Collector) TicketRejected(ctx context.Context, kind once.Kind) {
	c.Tickets.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) EntryServed(ctx context.Context, entry *once.Entry) {
	c.Deliveries.WithLabelValues("served").Inc()
}

func (c *Collector) EntryNotFound(ctx context.Context, entryID string) {
	c.Deliveries.WithLabelValues("not_found").Inc()
}

func (c *Collector) PreviewMasked(ctx context.Context, entry *once.Entry, userAgent string) {
	c.Deliveries.WithLabelValues("masked").Inc()
}

func (c *Collector) EntryPurged(ctx context.Context, entry *once.Entry) {
	c.Purges.WithLabelValues("deleted").Inc()
}

func (c *Collector) PurgeFailed(ctx context.Context, entry *once.Entry, err error) {
	c.Purges.WithLabelValues("failed").Inc()
}
