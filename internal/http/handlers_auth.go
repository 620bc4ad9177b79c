package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/splax/todos/internal/validation"
)

const (
	refreshCookieName = "refreshToken"
	msgLoggedOut      = "Successfully logged out"
)

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload validation.Login
	if err := validation.DecodeJSON(req.Body, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	_, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	r.recordAuthAttempt("login", err)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	r.setRefreshCookie(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, tokens)
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload validation.CreateUser
	if err := validation.DecodeJSON(req.Body, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	created, err := r.users.CreateUser(req.Context(), payload.Name, payload.Password, payload.Email)
	r.recordAuthAttempt("signup", err)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	token, err := refreshTokenFrom(req)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	access, err := r.auth.Refresh(req.Context(), token)
	r.recordAuthAttempt("refresh", err)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	token, err := refreshTokenFrom(req)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if err := r.auth.Logout(req.Context(), token); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	r.clearRefreshCookie(w)
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

// refreshTokenFrom reads the refresh token from the cookie, falling back to
// a {"refreshToken": ...} body. An empty body yields an empty token.
func refreshTokenFrom(req *http.Request) (string, error) {
	if cookie, err := req.Cookie(refreshCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return cookie.Value, nil
	}
	if req.Body == nil || req.Body == http.NoBody || req.ContentLength == 0 {
		return "", nil
	}
	var payload validation.RefreshToken
	if err := validation.DecodeJSON(req.Body, &payload); err != nil {
		return "", err
	}
	return payload.RefreshToken, nil
}

func (r *Router) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(r.cfg.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   r.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (r *Router) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
