package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkg_queries_total",
			Help: "Total number of questions answered, by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// Buckets go from a cached vector lookup to a slow LLM answer.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkg_query_duration_seconds",
			Help:    "Duration of queries in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	RetrievalDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkg_retrieval_degraded_total",
			Help: "Hybrid queries answered without one of the stores",
		},
		[]string{"store"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkg_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	IngestDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkg_ingest_documents_total",
			Help: "Documents that reached an ingestion stage",
		},
		[]string{"stage"},
	)

	StoreCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkg_store_call_duration_seconds",
			Help:    "Duration of store lookups made while answering queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"store", "operation"},
	)
)

// Outcome labels a finished query: "ok", "degraded" or the error kind.
func Outcome(res *query.Result, err error) string {
	if err != nil {
		var qe *query.Error
		if errors.As(err, &qe) {
			return string(qe.Kind)
		}
		return "error"
	}
	if res != nil && res.Degraded {
		return "degraded"
	}
	return "ok"
}

// ObserveQuery records one query.
func ObserveQuery(mode string, res *query.Result, err error, d time.Duration) {
	QueriesTotal.WithLabelValues(mode, Outcome(res, err)).Inc()
	QueryDuration.WithLabelValues(mode).Observe(d.Seconds())
	if err == nil && res != nil {
		for _, s := range res.DegradedStores {
			RetrievalDegradedTotal.WithLabelValues(s).Inc()
		}
	}
}

// ObserveIngestStage counts a document entering stage.
func ObserveIngestStage(stage string) {
	IngestDocumentsTotal.WithLabelValues(stage).Inc()
}

// StoreTracer turns query store-call trace events into latency metrics.
type StoreTracer struct{}

func (StoreTracer) Record(ev query.TraceEvent) {
	if ev.Kind != query.TraceEventStoreCall {
		return
	}
	StoreCallDuration.WithLabelValues(ev.Store, ev.Operation).Observe(float64(ev.DurationMs) / 1000)
}

// Middleware counts requests by route template so path parameters do not
// blow up label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			return err
		}
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
