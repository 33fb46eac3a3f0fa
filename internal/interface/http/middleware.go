package http

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pdportal/pd-portal/internal/domain/user"
	redisstore "github.com/pdportal/pd-portal/internal/infrastructure/persistence/redis"
	"github.com/pdportal/pd-portal/pkg/logger"
	"github.com/pdportal/pd-portal/pkg/metrics"
)

type contextKey string

const contextKeyIdentity contextKey = "identity"

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(token string) (user.Identity, error)
}

// RateLimiter decides whether a client may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, client string) (redisstore.RateLimitResult, error)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity).(user.Identity)
	return id, ok && !id.IsZero()
}

// WithIdentity stores the caller in ctx.
func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

func errField(err error) logger.Field { return logger.Err(err) }

func routeField(r *http.Request) logger.Field { return logger.Route(routePattern(r)) }

// requestLogger returns the request-scoped logger set by loggingMiddleware.
func requestLogger(r *http.Request) *logger.Logger {
	return logger.FromContext(r.Context())
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST LOGGING, RECOVERY, METRICS
// ══════════════════════════════════════════════════════════════════════════════

// loggingMiddleware logs all HTTP requests and records request metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqLog := s.logger.WithRequestID(chimiddleware.GetReqID(r.Context()))
		r = r.WithContext(logger.WithContext(r.Context(), reqLog))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		timer.ObserveDuration(metrics.HTTPRequestDuration.WithLabelValues(r.Method, route))

		if route == "/health" || route == "/live" || route == "/metrics" {
			return
		}
		reqLog.Info("http request",
			logger.String("method", r.Method),
			logger.Route(route),
			logger.String("path", r.URL.Path),
			logger.StatusCode(status),
			logger.Latency(timer.Duration()),
			logger.String("ip", r.RemoteAddr),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				requestLogger(r).Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware limits requests per client IP in fixed windows. When
// Redis is unreachable requests are let through.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.flags != nil && !s.flags.RateLimiting() {
			next.ServeHTTP(w, r)
			return
		}

		client := clientIP(r)
		res, err := s.deps.RateLimiter.Allow(r.Context(), client)
		if err != nil {
			requestLogger(r).Warn("rate limiter unavailable", errField(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			retry := int(time.Until(res.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSONError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// authMiddleware requires a valid bearer token and stores the identity in
// the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSONError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Authorization bearer token is required")
			return
		}

		identity, err := s.deps.Tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeJSONError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token")
			return
		}
		ctx := WithIdentity(r.Context(), identity)
		ctx = logger.WithContext(ctx, requestLogger(r).With(
			logger.UserID(identity.UserID.String()),
			logger.Role(identity.Role.String()),
		))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				writeJSONError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
				return
			}
			if !identity.Role.In(roles...) {
				writeJSONError(w, r, http.StatusForbidden, CodeForbidden, "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
