package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	claimsKey    contextKey = "claims"
)

type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context. revoked may be nil.
func Middleware(issuer *Issuer, revoked RevocationList, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			claims, err := issuer.Parse(raw)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				unauthorized(w, "invalid or expired token")
				return
			}

			if revoked != nil {
				isRevoked, err := revoked.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					log.Warn("AUTH", fmt.Sprintf("Revocation check failed, accepting token: %v", err))
				} else if isRevoked {
					log.LogSecurity("REVOKED_TOKEN", fmt.Sprintf("user %d", claims.UserID))
					unauthorized(w, "token has been revoked")
					return
				}
			}

			ctx := context.WithValue(r.Context(), principalKey, claims.Principal())
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only callers with one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Access denied", "insufficient role"))
		})
	}
}

func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// WithPrincipal is used by tests and internal callers to impersonate a user.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", msg))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
