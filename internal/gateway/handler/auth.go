package handler

import (
	"net/http"

	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/middleware"
)

// Me writes the signed-in user, or null for anonymous callers.
func Me(w http.ResponseWriter, r *http.Request) {
	u := entity.UserFrom(r.Context())
	if u.IsAnonymous() {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Logout clears the session cookie.
func Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
