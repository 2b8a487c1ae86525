package handlers

import (
	"net/http"

	"buildhub/internal/auth"
)

type sessionResponse struct {
	UserID  string `json:"userId"`
	Session string `json:"session"`
}

// RegisterHandler handles POST /api/auth/register
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, "RegisterHandler", err)
		return
	}
	user, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, "RegisterHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// LoginHandler handles POST /api/auth/login
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credential
	if err := decode(w, r, &cred); err != nil {
		writeError(w, r, "LoginHandler", err)
		return
	}
	userID, session, err := h.accounts.Authenticate(r.Context(), cred)
	if err != nil {
		writeError(w, r, "LoginHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: userID, Session: session})
}

// LogoutHandler handles POST /api/auth/logout
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Revoke(r.Context(), sessionFrom(r)); err != nil {
		writeError(w, r, "LogoutHandler", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
