package inkbase

import (
	"context"
	"net/http"
	"strings"

	"github.com/inkbase/inkbase/pkg/models"
)

type contextKey string

const userIDContextKey contextKey = "inkbase.userID"

func getTokenFromHeader(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// requireUser rejects requests that do not carry a valid bearer token
// and injects the authenticated user's id into the request context.
func (a *App) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := getTokenFromHeader(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Authorization required")
			return
		}
		userID, err := a.authenticate(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func userIDFromContext(ctx context.Context) (models.UserID, bool) {
	id, ok := ctx.Value(userIDContextKey).(models.UserID)
	return id, ok
}
