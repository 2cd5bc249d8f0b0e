package logout

import (
	"log/slog"
	"net/http"

	"eventfinder_auth/internal/http_server/cookies"
	resp "eventfinder_auth/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

// New clears the refresh cookie unconditionally. Idempotent; there is no
// server-side session state to tear down.
func New(
	log *slog.Logger,
	secureCookie bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		cookies.ClearRefresh(w, secureCookie)

		log.Info("user logged out")

		render.JSON(w, r, Response{
			Response: resp.OK("Logged out"),
		})
	}
}
