package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/ratelimit"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Context keys for identity and trace propagation.
type contextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey contextKey = "traceID"

	// RequestIDKey is the context key for request ID.
	RequestIDKey contextKey = "requestID"

	// IdentityKey is the context key for the authenticated API key.
	IdentityKey contextKey = "identity"

	// APIKeyHeader carries the caller's raw API key.
	APIKeyHeader = "X-API-Key"

	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"

	// TraceIDHeader is the HTTP header for trace ID.
	TraceIDHeader = "X-Trace-ID"
)

var tracer = otel.Tracer("haveibeendrained/api")

// Identity is the API key a request was authenticated with.
type Identity struct {
	KeyID             string
	Name              string
	Tier              string
	RequestsPerMinute int
}

// HashAPIKey returns the stored form of a raw API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// APIKeyMiddleware resolves X-API-Key into an Identity. Unknown keys are
// rejected; missing keys are rejected only when required is set.
func APIKeyMiddleware(repo domain.Repository, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(APIKeyHeader)
			if raw == "" {
				if required {
					writeJSON(w, http.StatusUnauthorized, map[string]string{
						"error": "X-API-Key header is required",
					})
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if repo == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error": "repository not available",
				})
				return
			}

			key, err := repo.GetAPIKeyByHash(r.Context(), HashAPIKey(raw))
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					writeJSON(w, http.StatusUnauthorized, map[string]string{
						"error": "invalid API key",
					})
					return
				}
				slog.Error("api key lookup failed", "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "internal server error",
				})
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, &Identity{
				KeyID:             key.ID,
				Name:              key.Name,
				Tier:              key.Tier,
				RequestsPerMinute: key.RequestsPerMinute,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitClient charges keyed callers by key id and everyone else by IP.
func rateLimitClient(r *http.Request) ratelimit.Client {
	if id := GetIdentity(r.Context()); id != nil {
		return ratelimit.Client{
			Key:   "key:" + id.KeyID,
			Tier:  ratelimit.TierKeyed,
			Limit: id.RequestsPerMinute,
		}
	}
	return ratelimit.Client{
		Key:  "ip:" + ratelimit.ClientIP(r),
		Tier: ratelimit.TierAnonymous,
	}
}

// TracingMiddleware creates OpenTelemetry spans and propagates trace context.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		if !span.SpanContext().TraceID().IsValid() {
			traceID = requestID
		}

		ctx = context.WithValue(ctx, RequestIDKey, requestID)
		ctx = context.WithValue(ctx, TraceIDKey, traceID)

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs HTTP requests with structured logging.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Identity is resolved further down the chain.
		holder := &identityHolder{}
		ctx := context.WithValue(r.Context(), identityHolderKey, holder)

		next.ServeHTTP(rw, r.WithContext(ctx))

		clientID := ""
		if holder.id != nil {
			clientID = holder.id.KeyID
		}

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", GetRequestID(r.Context()),
			"trace_id", GetTraceID(r.Context()),
			"client_id", clientID,
		)
	})
}

type identityHolder struct {
	id *Identity
}

const identityHolderKey contextKey = "identityHolder"

// rememberIdentity copies the resolved identity into the logging holder.
func rememberIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(identityHolderKey).(*identityHolder); ok {
			h.id = GetIdentity(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles Cross-Origin Resource Sharing for browser clients.
// An allowed list containing "*" accepts any origin.
func CORSMiddleware(allowed []string) func(http.Handler) http.Handler {
	anyOrigin := len(allowed) == 0 || slices.Contains(allowed, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case anyOrigin || slices.Contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID, X-Trace-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-ID, X-Cache, Retry-After")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RecoverMiddleware recovers from panics and returns 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
				)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetIdentity returns the authenticated API key, or nil for anonymous callers.
func GetIdentity(ctx context.Context) *Identity {
	id, _ := ctx.Value(IdentityKey).(*Identity)
	return id
}

// GetRequestID extracts request ID from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// GetTraceID extracts trace ID from context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}
