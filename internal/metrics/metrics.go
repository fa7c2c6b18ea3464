// Package metrics exposes Prometheus counters for the file server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "andfileserver_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "andfileserver_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "andfileserver_bytes_downloaded_total",
			Help: "Total bytes served by the file transfer endpoints",
		},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "andfileserver_bytes_uploaded_total",
			Help: "Total bytes accepted by the upload endpoint",
		},
	)

	thumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "andfileserver_thumbnails_total",
			Help: "Thumbnails produced, by outcome",
		},
		[]string{"status"},
	)

	archivesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "andfileserver_archives_total",
			Help: "ZIP archives streamed",
		},
	)
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDownload adds n to the download byte counter.
func RecordDownload(n int64) {
	if n > 0 {
		bytesDownloaded.Add(float64(n))
	}
}

// RecordUpload adds n to the upload byte counter.
func RecordUpload(n int64) {
	if n > 0 {
		bytesUploaded.Add(float64(n))
	}
}

// RecordThumbnail counts one thumbnail attempt, "ok" or "error".
func RecordThumbnail(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	thumbnailsTotal.WithLabelValues(status).Inc()
}

// RecordArchive counts one streamed archive.
func RecordArchive() {
	archivesTotal.Inc()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with request count and duration metrics,
// labelled by the route pattern it was registered under.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
