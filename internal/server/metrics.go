package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/pipeline"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "n2kgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "n2kgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	framesSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "n2kgate",
			Subsystem: "frames",
			Name:      "submitted_total",
			Help:      "Live frames accepted into the buffer.",
		},
	)
	framesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "n2kgate",
			Subsystem: "frames",
			Name:      "rejected_total",
			Help:      "Live frames rejected as malformed.",
		},
	)
	pipelineLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "n2kgate",
			Subsystem: "pipeline",
			Name:      "lines_total",
			Help:      "Lines handled by import and export runs.",
		},
		[]string{"op", "outcome"},
	)
	inspections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "n2kgate",
			Subsystem: "inspect",
			Name:      "requests_total",
			Help:      "Row inspections by decode result.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, framesSubmitted, framesRejected, pipelineLines, inspections)
	})
}

func outcomeLabel(out pipeline.Outcome) string {
	switch out {
	case pipeline.OutcomeRecord:
		return "record"
	case pipeline.OutcomeSkipped:
		return "skipped"
	case pipeline.OutcomePlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// RecordOutcome counts one pipeline line. It is passed to core.Options.
func RecordOutcome(op string, out pipeline.Outcome) {
	RegisterMetrics()
	pipelineLines.WithLabelValues(op, outcomeLabel(out)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument logs and counts every request. pattern is the route, used as
// the path label to keep cardinality bounded.
func instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)

		RegisterMetrics()
		status := strconv.Itoa(rec.status)
		httpRequests.WithLabelValues(r.Method, pattern, status).Inc()
		httpDuration.WithLabelValues(r.Method, pattern, status).Observe(elapsed.Seconds())

		logger := common.Logger()
		event := logger.Debug()
		if rec.status >= 500 {
			event = logger.Error()
		} else if rec.status >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Int("bytes", rec.bytes).
			Msg("http_request")
	}
}
