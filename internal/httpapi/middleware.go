package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/fiberplan/internal/apperr"
	"github.com/Sumatoshi-tech/fiberplan/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// RequestID returns the request correlation ID, or "" outside a request.
func RequestID(ctx context.Context) string {
	return observability.RequestIDFromContext(ctx)
}

type loggingWriter struct {
	http.ResponseWriter

	status  int
	written bool
}

func (lw *loggingWriter) WriteHeader(code int) {
	if !lw.written {
		lw.status = code
		lw.written = true
	}

	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingWriter) Write(buf []byte) (int, error) {
	if !lw.written {
		lw.status = http.StatusOK
		lw.written = true
	}

	n, err := lw.ResponseWriter.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}

	return n, nil
}

// requestContext assigns every request a correlation ID (honoring an
// incoming X-Request-Id), echoes it in the response, and logs the completion
// line.
func requestContext(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := observability.WithRequestID(r.Context(), requestID)
		w.Header().Set(requestIDHeader, requestID)

		started := time.Now()
		lw := &loggingWriter{ResponseWriter: w}

		next.ServeHTTP(lw, r.WithContext(ctx))

		// request_id arrives via the logging handler from ctx.
		logger.InfoContext(ctx, "request completed",
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Int("status_code", lw.status),
			slog.Float64("duration_ms", float64(time.Since(started).Microseconds())/1000.0),
			slog.String("client_ip", clientIP(r)),
			slog.Int64("request_size_bytes", r.ContentLength),
		)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// payloadLimit rejects declared-oversize bodies up front and caps chunked
// bodies with http.MaxBytesReader so handlers cannot read past the limit.
func payloadLimit(maxBytes int64, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lengthHeader := r.Header.Get("Content-Length"); lengthHeader != "" {
			length, err := strconv.ParseInt(lengthHeader, 10, 64)
			if err != nil {
				writeAppError(w, r, logger, apperr.New("invalid_content_length",
					"Invalid Content-Length header.", http.StatusBadRequest))

				return
			}

			if length > maxBytes {
				writeAppError(w, r, logger, payloadTooLarge(maxBytes))

				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

func payloadTooLarge(maxBytes int64) *apperr.Error {
	return apperr.New("payload_too_large",
		fmt.Sprintf("Request body exceeds %d bytes.", maxBytes),
		http.StatusRequestEntityTooLarge)
}

// rateLimiter enforces a per-client sliding window over request timestamps.
type rateLimiter struct {
	window      time.Duration
	maxRequests int
	logger      *slog.Logger

	mu   sync.Mutex
	byIP map[string][]time.Time
	now  func() time.Time
}

func newRateLimiter(window time.Duration, maxRequests int, logger *slog.Logger) *rateLimiter {
	return &rateLimiter{
		window:      window,
		maxRequests: maxRequests,
		logger:      logger,
		byIP:        make(map[string][]time.Time),
		now:         time.Now,
	}
}

// allow records the request unless the client already spent its window
// budget.
func (rl *rateLimiter) allow(ip string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.byIP[ip]

	kept := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) <= rl.window {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.maxRequests {
		rl.byIP[ip] = kept

		return false
	}

	rl.byIP[ip] = append(kept, now)

	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeAppError(w, r, rl.logger, apperr.New("rate_limit_exceeded",
				"Too many requests. Please retry later.", http.StatusTooManyRequests))

			return
		}

		next.ServeHTTP(w, r)
	})
}

// bufferedResponse holds a handler's full response so a timed-out request
// can be replaced with a 504 instead of a half-written body.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (br *bufferedResponse) Header() http.Header { return br.header }

func (br *bufferedResponse) WriteHeader(code int) { br.status = code }

func (br *bufferedResponse) Write(buf []byte) (int, error) {
	return br.body.Write(buf) //nolint:wrapcheck // bytes.Buffer writes cannot fail
}

func (br *bufferedResponse) flushTo(w http.ResponseWriter) {
	maps.Copy(w.Header(), br.header)
	w.WriteHeader(br.status)
	_, _ = w.Write(br.body.Bytes())
}

// timeout bounds handler wall time. The handler runs against a buffered
// writer; if the deadline fires first the client gets a clean 504 and the
// handler's eventual output is dropped.
func timeout(limit time.Duration, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), limit)
		defer cancel()

		buffered := newBufferedResponse()
		done := make(chan struct{})

		go func() {
			defer close(done)

			next.ServeHTTP(buffered, r.WithContext(ctx))
		}()

		select {
		case <-done:
			buffered.flushTo(w)
		case <-ctx.Done():
			writeAppError(w, r, logger, apperr.New("request_timeout",
				fmt.Sprintf("Request exceeded %d seconds.", int(limit.Seconds())),
				http.StatusGatewayTimeout))
		}
	})
}
