package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Middleware represents an HTTP middleware that wraps a handler.
type Middleware func(http.Handler) http.Handler

// ApplyMiddlewares applies the provided middleware in order, where the first
// middleware in the list is the outermost handler.
func ApplyMiddlewares(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

const limiterTTL = 30 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits each authenticated user to perMinute requests
// with a burst of the same size. It must run after AuthMiddleware. A
// non-positive limit disables it.
func RateLimitMiddleware(perMinute int, logger *slog.Logger) Middleware {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	var (
		mu          sync.Mutex
		users       = make(map[string]*userLimiter)
		lastCleanup time.Time
	)
	every := rate.Every(time.Minute / time.Duration(perMinute))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			key := UserID(r.Context())

			mu.Lock()
			u, ok := users[key]
			if !ok {
				u = &userLimiter{limiter: rate.NewLimiter(every, perMinute)}
				users[key] = u
			}
			u.lastSeen = now
			if now.Sub(lastCleanup) > limiterTTL {
				for k, v := range users {
					if now.Sub(v.lastSeen) > limiterTTL {
						delete(users, k)
					}
				}
				lastCleanup = now
			}
			mu.Unlock()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
			if !u.limiter.AllowN(now, 1) {
				logger.Warn("rate limit exceeded", "user_id", key, "path", r.URL.Path)
				retryAfter := int(math.Ceil(60 / float64(perMinute)))
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				writeErr(w, http.StatusTooManyRequests, "too many requests", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the Flusher of the wrapped writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LoggingMiddleware records structured request logs.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			switch {
			case rec.status >= 500:
				logger.ErrorContext(r.Context(), "request completed", attrs...)
			case rec.status >= 400:
				logger.WarnContext(r.Context(), "request completed", attrs...)
			default:
				logger.InfoContext(r.Context(), "request completed", attrs...)
			}
		})
	}
}
