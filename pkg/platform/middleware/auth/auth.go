package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"intake/pkg/requestcontext"
)

// JWTValidator defines the interface for validating identity tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the identity assertions the middleware needs.
type JWTClaims struct {
	Subject     string
	DisplayName string
	Role        string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireIdentity validates the bearer token and stores the caller identity in
// the request context. Requests without a valid token get 401.
func RequireIdentity(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			role := requestcontext.Role(claims.Role)
			if role != requestcontext.RoleApplicant && role != requestcontext.RoleReviewer {
				logger.WarnContext(ctx, "unauthorized access - unknown role",
					"role", claims.Role,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Unknown role")
				return
			}

			ctx = requestcontext.WithActor(ctx, requestcontext.Identity{
				Subject:     claims.Subject,
				DisplayName: claims.DisplayName,
				Role:        role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireReviewer rejects callers whose identity lacks the reviewer role.
// Must run after RequireIdentity.
func RequireReviewer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := requestcontext.Actor(ctx)
			if !ok || !actor.IsReviewer() {
				logger.WarnContext(ctx, "forbidden - reviewer role required",
					"request_id", requestcontext.RequestID(ctx),
					"subject", actor.Subject,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Reviewer role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
