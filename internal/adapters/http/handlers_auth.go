package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/application"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		// The login shell posts a plain form; the SPA posts JSON.
		if err := r.ParseForm(); err != nil {
			writeValidationError(r.Context(), w, "login", err)
			return
		}
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	} else if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = readIP(r)
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}

	setSessionCookie(w, res.Token, time.Duration(res.ExpiresIn)*time.Second)

	// A guard redirect carries the intended destination; hand it back so
	// the portal resumes where the user was headed.
	returnTo := sanitizeReturnTo(r.URL.Query().Get(returnToParam), "/home")
	writeSuccess(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"session_id": res.SessionID,
		"expires_in": res.ExpiresIn,
		"role":       res.Role,
		"return_to":  returnTo,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "refresh")
		return
	}
	res, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		// 401-class refresh failures end the client session; they are
		// never retried.
		clearSessionCookie(w)
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	setSessionCookie(w, res.Token, time.Duration(res.ExpiresIn)*time.Second)
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "logout")
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "me")
		return
	}
	res, err := h.service.CurrentUser(r.Context(), token)
	if err != nil {
		writeMappedError(r.Context(), w, "me", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_sessions")
		return
	}
	res, err := h.service.ListSessions(r.Context(), token)
	if err != nil {
		writeMappedError(r.Context(), w, "list_sessions", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_session")
		return
	}
	sessionID, err := uuid.Parse(pathParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid session id")
		return
	}
	if err := h.service.RevokeSession(r.Context(), token, sessionID); err != nil {
		writeMappedError(r.Context(), w, "revoke_session", err)
		return
	}
	writeMessage(w, http.StatusOK, "session revoked")
}

func setSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
