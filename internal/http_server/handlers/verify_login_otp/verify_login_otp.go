package verifyLoginOtp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"eventfinder_auth/internal/auth"
	"eventfinder_auth/internal/http_server/cookies"
	resp "eventfinder_auth/internal/lib/api/response"
	sl "eventfinder_auth/internal/lib/logger"
	"eventfinder_auth/internal/models"
	"eventfinder_auth/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	UserID string `json:"userId" validate:"required"`
	Otp    string `json:"otp" validate:"required,len=6,numeric"`
}

type Response struct {
	resp.Response
	AccessToken string       `json:"accessToken,omitempty"`
	User        *models.User `json:"user,omitempty"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	cookieMaxAge time.Duration,
	secureCookie bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyLoginOtp.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		session, err := authService.VerifyLoginOtp(ctx, req.UserID, req.Otp)
		if err != nil {
			if errors.Is(err, storage.ErrOtpNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("OTP not found or expired"))

				return
			}
			if errors.Is(err, auth.ErrOtpMismatch) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid OTP"))

				return
			}

			log.Error("failed to verify login otp", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user logged in via otp")

		cookies.SetRefresh(w, session.RefreshToken, cookieMaxAge, secureCookie)

		render.JSON(w, r, Response{
			AccessToken: session.AccessToken,
			User:        &session.User,
		})
	}
}
