package verifyRegisterOtp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"eventfinder_auth/internal/auth"
	resp "eventfinder_auth/internal/lib/api/response"
	sl "eventfinder_auth/internal/lib/logger"
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
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyRegisterOtp.New"

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

		if err := authService.VerifyRegisterOtp(ctx, req.UserID, req.Otp); err != nil {
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

			log.Error("failed to verify registration otp", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("email verified")

		render.JSON(w, r, Response{
			Response: resp.OK("Email verified successfully"),
		})
	}
}
