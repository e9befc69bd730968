package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shuttertag/shuttertag/pkg/contextkeys"
	"github.com/shuttertag/shuttertag/pkg/observability"
)

// RequestIDHeader carries the request id back to the client and accepts
// one supplied by an upstream proxy.
const RequestIDHeader = "X-Request-ID"

// statusRecorder captures the status a handler writes so it can be logged
// and labeled on metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger assigns each request an id, attaches a scoped logger to
// the context, and records structured access logs plus HTTP metrics on
// completion.
func RequestLogger(logger *observability.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			reqLogger := logger.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			ctx = observability.WithLogger(ctx, reqLogger)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))
			elapsed := time.Since(start)

			if metrics != nil {
				// Label on the route template, not the raw path, to keep
				// metric cardinality bounded.
				path := r.URL.Path
				if route := mux.CurrentRoute(r); route != nil {
					if tmpl, err := route.GetPathTemplate(); err == nil {
						path = tmpl
					}
				}
				metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
				metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
			}

			reqLogger.WithFields(map[string]interface{}{
				"status":      recorder.status,
				"duration_ms": elapsed.Milliseconds(),
			}).Info("Request completed")
		})
	}
}
