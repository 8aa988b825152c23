package authz

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"msgcore/internal/observability/metrics"
	obsmw "msgcore/internal/observability/middleware"
)

// JWTValidator verifies bearer tokens against a remote JWKS endpoint. Used
// when no shared HS256 secret is configured.
type JWTValidator struct {
	jwks   *keyfunc.JWKS
	issuer string
}

func NewJWTValidator(ctx context.Context, jwksURL, issuer string) (*JWTValidator, error) {
	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Minute * 15,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, err
	}
	return &JWTValidator{jwks: jwks, issuer: issuer}, nil
}

func (j *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := "success"
		defer func() {
			metrics.AuthenticationAttemptsTotal.WithLabelValues("jwks", result).Inc()
		}()
		reqID := obsmw.RequestIDFromContext(r.Context())
		traceID := obsmw.TraceIDFromContext(r.Context())

		tokStr, ok := bearerToken(r)
		if !ok {
			result = "failure"
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			slog.Warn("jwks missing bearer", "request_id", reqID, "trace_id", traceID)
			return
		}

		token, err := jwt.Parse(tokStr, j.jwks.Keyfunc)
		if err != nil || !token.Valid {
			result = "failure"
			http.Error(w, "invalid token", http.StatusUnauthorized)
			slog.Warn("jwks invalid token", "error", err, "request_id", reqID, "trace_id", traceID)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			result = "failure"
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		if iss, _ := claims["iss"].(string); iss != "" && iss != j.issuer {
			result = "failure"
			http.Error(w, "issuer mismatch", http.StatusUnauthorized)
			slog.Warn("jwks issuer mismatch", "issuer", iss, "request_id", reqID, "trace_id", traceID)
			return
		}
		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			result = "failure"
			http.Error(w, "no subject", http.StatusUnauthorized)
			slog.Warn("jwks missing subject", "request_id", reqID, "trace_id", traceID)
			return
		}

		ctx := WithSubject(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
