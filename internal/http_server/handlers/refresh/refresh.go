package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"eventfinder_auth/internal/auth"
	"eventfinder_auth/internal/http_server/cookies"
	resp "eventfinder_auth/internal/lib/api/response"
	"eventfinder_auth/internal/lib/jwt"
	sl "eventfinder_auth/internal/lib/logger"
	"eventfinder_auth/internal/models"
	"eventfinder_auth/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	AccessToken string       `json:"accessToken,omitempty"`
	User        *models.User `json:"user,omitempty"`
}

// New reads the refresh cookie and mints a fresh access token. 401 when the
// cookie is absent, 403 when the token fails verification.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		cookie, err := r.Cookie(cookies.Name)
		if err != nil || cookie.Value == "" {
			log.Info("refresh cookie missing")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		accessToken, user, err := authService.Refresh(ctx, cookie.Value)
		if err != nil {
			if errors.Is(err, jwt.ErrInvalidToken) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Forbidden"))

				return
			}
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to refresh access token", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("access token refreshed")

		render.JSON(w, r, Response{
			AccessToken: accessToken,
			User:        &user,
		})
	}
}
