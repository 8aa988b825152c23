package authz

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"msgcore/internal/observability/metrics"
	obsmw "msgcore/internal/observability/middleware"
)

// HMACValidator checks HS256 bearer tokens against a shared secret and puts
// the subject user ID into the request context.
type HMACValidator struct {
	secret []byte
	issuer string
}

func NewHMACValidator(secret, issuer string) *HMACValidator {
	return &HMACValidator{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (h *HMACValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := "success"
		defer func() {
			metrics.AuthenticationAttemptsTotal.WithLabelValues("hmac", result).Inc()
		}()
		reqID := obsmw.RequestIDFromContext(r.Context())
		traceID := obsmw.TraceIDFromContext(r.Context())

		tokStr, ok := bearerToken(r)
		if !ok {
			result = "failure"
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			slog.Warn("auth missing bearer", "request_id", reqID, "trace_id", traceID)
			return
		}

		token, err := jwt.Parse(tokStr, func(token *jwt.Token) (interface{}, error) {
			// HS* only; anything else is a downgrade attempt.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
			}
			return h.secret, nil
		})
		if err != nil || !token.Valid {
			result = "failure"
			http.Error(w, "invalid token", http.StatusUnauthorized)
			slog.Warn("auth invalid token", "error", err, "request_id", reqID, "trace_id", traceID)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			result = "failure"
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			slog.Warn("auth invalid claims", "request_id", reqID, "trace_id", traceID)
			return
		}
		if iss, _ := claims["iss"].(string); iss != "" && iss != h.issuer {
			result = "failure"
			http.Error(w, "issuer mismatch", http.StatusUnauthorized)
			slog.Warn("auth issuer mismatch", "issuer", iss, "request_id", reqID, "trace_id", traceID)
			return
		}
		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			result = "failure"
			http.Error(w, "no subject", http.StatusUnauthorized)
			slog.Warn("auth missing subject", "request_id", reqID, "trace_id", traceID)
			return
		}

		ctx := WithSubject(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken pulls the token from the Authorization header, falling back to
// the ?token= query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	raw := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[len("Bearer "):]), true
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	return "", false
}

type subjectKey struct{}

func WithSubject(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, subjectKey{}, userID)
}

// SubjectFrom returns the authenticated user ID, if any.
func SubjectFrom(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(subjectKey{}).(uuid.UUID)
	return v, ok
}
