package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/handlers/render"
	"github.com/nkiryanov/taskm/internal/handlers/userctx"
	"github.com/nkiryanov/taskm/internal/models"
)

type authService interface {
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

type logger interface {
	Error(msg string, args ...any)
}

// AuthMiddleware authenticates the request and stores the user in context
// Rejections are deliberately distinct:
//   - no token at all: "Not authorized, no token"
//   - expired token: "Token expired" (client may try to refresh)
//   - anything else token-wise: "Not authorized, token failed"
func AuthMiddleware(as authService, l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.GetUserFromRequest(r.Context(), r)

			switch {
			case err == nil:
				ctx := userctx.New(r.Context(), user)
				next.ServeHTTP(w, r.WithContext(ctx))
			case errors.Is(err, apperrors.ErrNoToken):
				render.ServiceError(w, "Not authorized, no token", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrTokenExpired):
				render.ServiceError(w, "Token expired", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrNotAuthenticated):
				render.ServiceError(w, "Not authorized, token failed", http.StatusUnauthorized)
			default:
				// Store or crypto fault: never leak internals to the response
				l.Error("authentication failed unexpectedly", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
		})
	}
}

// AuthorizeMiddleware gates by role, must run after AuthMiddleware
func AuthorizeMiddleware(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Not authorized, no token", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(roles, user.Role) {
				render.ServiceError(w, fmt.Sprintf("User role %s is not authorized", user.Role), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
