package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/crease/pkg/metrics"
)

// MetricsMiddleware records request count and latency for endpoint, and counts
// every 4xx/5xx answer against the http component.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(time.Since(start).Milliseconds()))
		if kind, failed := errorKind(rec.status); failed {
			metrics.RecordErrorByComponent("http", kind)
		}
	}
}

// errorKind maps a status to the error_type label.
func errorKind(status int) (string, bool) {
	switch {
	case status == http.StatusServiceUnavailable:
		return "unavailable", true
	case status >= http.StatusInternalServerError:
		return "server_error", true
	case status == http.StatusMethodNotAllowed:
		return "method_not_allowed", true
	case status == http.StatusNotFound:
		return "not_found", true
	case status >= http.StatusBadRequest:
		return "client_error", true
	}
	return "", false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
