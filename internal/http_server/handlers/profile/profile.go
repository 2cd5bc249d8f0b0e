package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"eventfinder_auth/internal/auth"
	resp "eventfinder_auth/internal/lib/api/response"
	sl "eventfinder_auth/internal/lib/logger"
	"eventfinder_auth/internal/middleware/authn"
	"eventfinder_auth/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := authn.UserID(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := authService.Profile(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to load profile", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, user)
	}
}
