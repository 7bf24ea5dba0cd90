package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"opsdash/internal/auth"
	"opsdash/internal/db"
	"opsdash/internal/model"
	"opsdash/internal/service"

	"github.com/go-chi/chi/v5"
)

type CreateUserRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	FullName string     `json:"full_name"`
}

func (d Dependencies) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	user, err := d.Users.Create(r.Context(), service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		FullName: req.FullName,
	})
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (d Dependencies) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := db.ListUsersParams{
		Role:   model.Role(q.Get("role")),
		Search: q.Get("search"),
		Skip:   intParam(q.Get("skip"), 0),
		Limit:  intParam(q.Get("limit"), 50),
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		params.IsActive = &active
	}

	users, err := d.Users.List(r.Context(), params)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (d Dependencies) getUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	user, err := d.Users.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	if !d.Guard.CanView(actor, user) {
		WriteError(w, http.StatusForbidden, "forbidden", "Not permitted to view this user", d.Log)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (d Dependencies) updateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	var patch model.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	target, err := d.Users.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	if !d.Guard.CanModify(actor, target) {
		WriteError(w, http.StatusForbidden, "forbidden", "Not permitted to modify this user", d.Log)
		return
	}
	// Role and activation changes stay with admins
	if (patch.Role != nil || patch.IsActive != nil) && actor.Role != model.RoleAdmin {
		WriteError(w, http.StatusForbidden, "forbidden", "Only admins may change role or activation", d.Log)
		return
	}

	user, err := d.Users.Update(r.Context(), id, patch)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (d Dependencies) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	if id == actor.ID {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Cannot delete your own account", d.Log)
		return
	}

	if err := d.Users.Delete(r.Context(), id); err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
