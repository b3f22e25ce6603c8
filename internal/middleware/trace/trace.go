// Package trace assigns request ids and logs every HTTP request.
package trace

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"committee/internal/log"
	"committee/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderRequestID is read from trusted callers and echoed on responses.
const HeaderRequestID = "X-Request-ID"

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.Logger
}

func NewMiddleware(logger *log.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		logger:    logger.WithComponent(log.ComponentHTTP),
	}
}

// Middleware stores the request id and a request-scoped logger in the
// context, then logs the outcome with a level matching the status.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = GenerateRequestID()
		}
		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		reqLogger := m.logger.With(log.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = log.WithContext(ctx, reqLogger)
		r = r.WithContext(ctx)

		w.Header().Set(HeaderRequestID, requestID)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method).Observe(duration.Seconds())

		fields := log.NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, r.Header.Get("User-Agent")).
			WithHTTPResponse(rw.statusCode, duration.Milliseconds())
		fields[log.FieldClientIP] = clientIP

		switch {
		case rw.statusCode >= 500:
			reqLogger.ErrorContext(ctx, "HTTP request completed", fields.ToSlice()...)
		case rw.statusCode >= 400:
			reqLogger.WarnContext(ctx, "HTTP request completed", fields.ToSlice()...)
		default:
			reqLogger.InfoContext(ctx, "HTTP request completed", fields.ToSlice()...)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID returns a new random request id.
func GenerateRequestID() string {
	return uuid.NewString()
}

// RequestID extracts the request id from ctx.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
