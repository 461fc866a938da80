package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sungwon/campaign-dispatch/internal/metrics"
)

type contextKey string

const workspaceIDKey contextKey = "workspace_id"

// WorkspaceFromContext retrieves the authenticated workspace ID from the
// request context. Returns 0 if no workspace is set.
func WorkspaceFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(workspaceIDKey).(int64); ok {
		return id
	}
	return 0
}

// WithWorkspace stores the workspace ID in the context.
func WithWorkspace(ctx context.Context, workspaceID int64) context.Context {
	return context.WithValue(ctx, workspaceIDKey, workspaceID)
}

// BearerAuth returns an HTTP middleware that validates JWT Bearer tokens and
// stores the token's workspace in the request context.
func BearerAuth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, `{"error":"authorization header required"}`)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, `{"error":"invalid authorization format, expected Bearer <token>"}`)
				return
			}

			tokenStr := parts[1]
			if tokenStr == "" {
				unauthorized(w, `{"error":"empty token"}`)
				return
			}

			claims, err := jwtService.ValidateToken(tokenStr)
			if err != nil {
				unauthorized(w, `{"error":"invalid or expired token"}`)
				return
			}

			ctx := WithWorkspace(r.Context(), claims.WorkspaceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, body string) {
	metrics.APIAuthFailuresTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(body))
}
