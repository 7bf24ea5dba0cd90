package api

import (
	"encoding/json"
	"net/http"
	"time"

	"opsdash/internal/auth"
	"opsdash/internal/model"

	"github.com/go-chi/chi/v5"
)

type CreateRequestRequest struct {
	FunctionID string                 `json:"function_id"`
	Parameters map[string]interface{} `json:"parameters"`
}

func (d Dependencies) createRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())

	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}
	if req.FunctionID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "function_id is required", d.Log)
		return
	}

	created, err := d.Requests.Create(r.Context(), actor, req.FunctionID, req.Parameters)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	// Admin submissions skip review: same composition as execute
	if actor.Role == model.RoleAdmin {
		detail, err := d.Requests.Approve(r.Context(), created.ID, actor.ID)
		if err != nil {
			WriteServiceError(w, err, d.Log)
			return
		}
		writeJSON(w, http.StatusCreated, detail)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (d Dependencies) listRequests(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	q := r.URL.Query()

	filter := model.RequestFilter{
		UserID: q.Get("user_id"),
		Status: model.Status(q.Get("status")),
		Search: q.Get("search"),
		Skip:   intParam(q.Get("skip"), 0),
		Limit:  intParam(q.Get("limit"), 50),
	}
	if v := q.Get("date_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.DateFrom = &t
		}
	}
	if v := q.Get("date_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.DateTo = &t
		}
	}

	requests, err := d.Requests.List(r.Context(), actor, filter)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, requests)
}

func (d Dependencies) getRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	detail, err := d.Requests.Get(r.Context(), actor, id)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (d Dependencies) approveRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	detail, err := d.Requests.Approve(r.Context(), id, actor.ID)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

type RejectRequestRequest struct {
	Reason string `json:"reason"`
}

func (d Dependencies) rejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	var req RejectRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	detail, err := d.Requests.Reject(r.Context(), id, actor.ID, req.Reason)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (d Dependencies) deleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	if err := d.Requests.Delete(r.Context(), actor, id); err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Request deleted"})
}
