package api

import (
	"encoding/json"
	"net/http"

	"opsdash/internal/auth"
	"opsdash/internal/model"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

func (d Dependencies) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Username and password are required", d.Log)
		return
	}

	user, err := d.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	token, err := d.Tokens.Issue(user)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "token_failed", "Failed to issue token", d.Log)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

func (d Dependencies) me(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	writeJSON(w, http.StatusOK, actor)
}

func (d Dependencies) refresh(w http.ResponseWriter, r *http.Request) {
	// The middleware already re-resolved the identity, so issuing off the
	// fresh user record picks up any role change.
	actor, _ := auth.Identity(r.Context())

	token, err := d.Tokens.Issue(actor)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "token_failed", "Failed to issue token", d.Log)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        actor,
	})
}

// logout is stateless: tokens expire on their own, the endpoint exists so
// clients have a uniform place to end a session.
func (d Dependencies) logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (d Dependencies) validate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid": true,
		"user":  actor,
	})
}
