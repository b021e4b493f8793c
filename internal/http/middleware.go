package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/logger"
	"github.com/fjod/go_cart/internal/metrics"
)

type ctxKey int

const (
	ownerIDKey ctxKey = iota
	roleKey
	requestIDKey
)

const RoleAdmin = "admin"

// Claims are the bearer token claims; Subject is the owner id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the HS256 bearer token and puts its subject into
// the request context as the owner id.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if claims.Subject == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role, _ := r.Context().Value(roleKey).(string); role != RoleAdmin {
			respondError(w, http.StatusForbidden, "permission_denied", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WebhookSecretMiddleware authenticates processor callbacks by shared secret.
func WebhookSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger replaces chi's middleware.Logger with structured zap lines.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", statusOf(ww)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", getRequestID(r.Context())),
			}
			l := logger.WithContext(r.Context(), log)
			if statusOf(ww) >= http.StatusInternalServerError {
				l.Error("request", fields...)
				return
			}
			l.Info("request", fields...)
		})
	}
}

// MetricsMiddleware records request counts and latency by route pattern, so
// path parameters do not explode label cardinality.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(statusOf(ww))).Inc()
			m.Latency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// BodyLimit caps request bodies; decodeJSON reports the overflow as 413.
func BodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// statusOf treats a handler that never wrote a header as 200.
func statusOf(ww middleware.WrapResponseWriter) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

func getOwnerID(ctx context.Context) string {
	if ownerID, ok := ctx.Value(ownerIDKey).(string); ok {
		return ownerID
	}
	return ""
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// requireOwner writes 401 and returns false when no owner is authenticated.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := getOwnerID(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return "", false
	}
	return ownerID, true
}
