package controller

import (
	"context"
	"net"
	"net/http"
	"strings"
	"ticketwatch/pkg/logger"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request ID in and out of the server.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// RequestID returns the request ID stored in ctx by WithLogger.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)

	return id
}

// responseRecorder captures the status code and body size written by the
// downstream handler.
type responseRecorder struct {
	http.ResponseWriter

	status int
	bytes  int
}

func (rec *responseRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n

	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *responseRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// ClientIP returns the originating client address, preferring the
// X-Forwarded-For and X-Real-IP headers over the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// "client, proxy1, proxy2"
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// WithLogger returns a middleware that derives a request logger from base,
// tags it with a request ID and logs one access entry per request. Requests to
// quietPaths are logged at debug level.
func WithLogger(ctx context.Context, next http.Handler, quietPaths ...string) http.Handler {
	base := logger.Get(ctx)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		l := base.With(zap.String("requestId", requestID))
		reqCtx := logger.WithLogger(context.WithValue(r.Context(), requestIDKey{}, requestID), l)

		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(reqCtx))

		log := l.Info
		for _, p := range quietPaths {
			if r.URL.Path == p {
				log = l.Debug

				break
			}
		}
		log("access log",
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIp", ClientIP(r)),
			zap.String("userAgent", r.UserAgent()),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	})
}

// WithRecover answers 500 when next panics and logs the panic value.
func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler { //nolint: errorlint
					panic(p)
				}
				logger.Error(r.Context(), "handler panicked", zap.Any("panic", p), zap.Stack("stack"))
				WriteJSON(r.Context(), w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
