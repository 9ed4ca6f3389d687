package app

import (
	"net/http"
	"time"
)

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && parts[0] == "login":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		login, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		s.setLoginCookies(w, login)
		writeSuccess(w, http.StatusOK, map[string]any{"user": login.User})

	case r.Method == http.MethodPost && parts[0] == "register":
		var body struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		login, err := s.service.Register(r.Context(), body.Name, body.Email, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		s.setLoginCookies(w, login)
		writeSuccess(w, http.StatusOK, map[string]any{"user": login.User})

	case r.Method == http.MethodPost && parts[0] == "logout":
		s.service.Logout(r.Context(), s.service.Resolve(r))
		s.clearLoginCookies(w)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Logged out successfully"})

	case r.Method == http.MethodGet && parts[0] == "session":
		writeSuccess(w, http.StatusOK, s.service.SessionState(s.service.Resolve(r)))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// setLoginCookies forwards the backend session and the local session token.
// The backend cookie is always Secure.
func (s *HTTPServer) setLoginCookies(w http.ResponseWriter, login Login) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.access.BackendCookieName(),
		Value:    login.BackendSecret,
		Path:     "/",
		Expires:  login.BackendExpires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.access.LocalCookieName(),
		Value:    login.SessionToken,
		Path:     "/",
		Expires:  login.SessionExpires,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearLoginCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.access.BackendCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.access.LocalCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
