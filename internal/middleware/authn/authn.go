package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	resp "eventfinder_auth/internal/lib/api/response"
	"eventfinder_auth/internal/lib/jwt"

	"github.com/go-chi/render"
)

type ctxKey struct{}

// UserID returns the user id placed in the context by Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

// Middleware guards protected routes with the bearer access token.
func Middleware(log *slog.Logger, tokens *jwt.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Unauthorized"))

				return
			}

			userID, err := tokens.ParseAccessToken(token)
			if err != nil {
				log.Warn("invalid access token")

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Unauthorized"))

				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
