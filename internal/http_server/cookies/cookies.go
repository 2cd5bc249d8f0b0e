package cookies

import (
	"net/http"
	"time"
)

// Name is the refresh cookie name clients depend on.
const Name = "refreshToken"

// SetRefresh installs the refresh token cookie: HttpOnly, SameSite=Strict,
// Secure outside local env, 7-day max age by default.
func SetRefresh(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefresh expires the refresh cookie unconditionally.
func ClearRefresh(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
