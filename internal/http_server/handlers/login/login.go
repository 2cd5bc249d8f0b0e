package login

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

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Response covers both branches: a token+user pair for verified users, or
// userId+status when a login OTP was dispatched instead.
type Response struct {
	resp.Response
	AccessToken string       `json:"accessToken,omitempty"`
	User        *models.User `json:"user,omitempty"`
	UserID      string       `json:"userId,omitempty"`
	Status      string       `json:"status,omitempty"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	cookieMaxAge time.Duration,
	secureCookie bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		result, err := authService.Login(ctx, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid credentials"))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if result.OtpSent {
			log.Info("login otp dispatched")

			render.JSON(w, r, Response{
				Response: resp.OK("OTP sent"),
				UserID:   result.UserID.Hex(),
				Status:   "OTP_SENT",
			})

			return
		}

		log.Info("User logged in successfully")

		cookies.SetRefresh(w, result.Session.RefreshToken, cookieMaxAge, secureCookie)

		render.JSON(w, r, Response{
			AccessToken: result.Session.AccessToken,
			User:        &result.Session.User,
		})
	}
}
