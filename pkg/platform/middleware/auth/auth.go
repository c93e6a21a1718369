package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"legitify/pkg/requestcontext"
)

// JWTValidator validates a bearer token and returns its claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the claims the middleware needs from a validated token.
type JWTClaims struct {
	UserID        string
	Email         string
	Role          string
	Organization  string
	IdentityLabel string
}

// PrincipalSyncer records an authenticated caller in the local user table.
type PrincipalSyncer interface {
	SyncPrincipal(ctx context.Context, p requestcontext.Principal) error
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

func parseClaims(claims *JWTClaims) (requestcontext.Principal, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return requestcontext.Principal{}, fmt.Errorf("invalid subject: %w", err)
	}
	if claims.Role == "" {
		return requestcontext.Principal{}, fmt.Errorf("role claim missing")
	}
	return requestcontext.Principal{
		UserID:        userID,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		Role:          claims.Role,
		Organization:  strings.ToLower(strings.TrimSpace(claims.Organization)),
		IdentityLabel: claims.IdentityLabel,
	}, nil
}

// RequireAuth validates the bearer token and stores the caller's Principal in context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			principal, err := parseClaims(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
		})
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := requestcontext.GetPrincipal(ctx)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if !slices.Contains(roles, principal.Role) {
				logger.WarnContext(ctx, "forbidden - role not permitted",
					"role", principal.Role,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Role not permitted for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SyncPrincipal upserts the authenticated caller before the handler runs.
// It must run after RequireAuth.
func SyncPrincipal(syncer PrincipalSyncer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := requestcontext.GetPrincipal(ctx)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if err := syncer.SyncPrincipal(ctx, principal); err != nil {
				logger.ErrorContext(ctx, "failed to sync caller",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusConflict, "conflict", "Caller account could not be recorded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
