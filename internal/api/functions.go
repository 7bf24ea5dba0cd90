package api

import (
	"encoding/json"
	"net/http"

	"opsdash/internal/auth"
	"opsdash/internal/db"
	"opsdash/internal/model"
	"opsdash/internal/service"

	"github.com/go-chi/chi/v5"
)

type CreateFunctionRequest struct {
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	APIEndpoint    string                `json:"api_endpoint"`
	HTTPMethod     string                `json:"http_method"`
	MinRole        model.Role            `json:"min_role"`
	RequiredFields []model.RequiredField `json:"required_fields"`
	URLParameters  []string              `json:"url_parameters"`
	RequestHeaders map[string]string     `json:"request_headers"`
	Timeout        int                   `json:"timeout"`
}

func (d Dependencies) createFunction(w http.ResponseWriter, r *http.Request) {
	var req CreateFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	fn, err := d.Functions.Create(r.Context(), service.CreateFunctionInput{
		Name:           req.Name,
		Description:    req.Description,
		APIEndpoint:    req.APIEndpoint,
		HTTPMethod:     req.HTTPMethod,
		MinRole:        req.MinRole,
		RequiredFields: req.RequiredFields,
		URLParameters:  req.URLParameters,
		RequestHeaders: req.RequestHeaders,
		Timeout:        req.Timeout,
	})
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusCreated, fn)
}

func (d Dependencies) listFunctions(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	q := r.URL.Query()

	functions, err := d.Functions.List(r.Context(), actor, db.ListFunctionsParams{
		MinRole:    model.Role(q.Get("min_role")),
		HTTPMethod: q.Get("http_method"),
		Search:     q.Get("search"),
		Skip:       intParam(q.Get("skip"), 0),
		Limit:      intParam(q.Get("limit"), 50),
	})
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, functions)
}

func (d Dependencies) getFunction(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	id := chi.URLParam(r, "id")

	fn, err := d.Functions.Get(r.Context(), actor, id)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, fn)
}

func (d Dependencies) updateFunction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch model.FunctionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	fn, err := d.Functions.Update(r.Context(), id, patch)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, fn)
}

func (d Dependencies) deleteFunction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := d.Functions.Deactivate(r.Context(), id); err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Function deactivated"})
}

type ExecuteFunctionRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
}

// executeFunction submits an execution request. Admin submissions are
// approved in the same call, so they go straight to the executor.
func (d Dependencies) executeFunction(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())
	functionID := chi.URLParam(r, "id")

	var req ExecuteFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	created, err := d.Requests.Create(r.Context(), actor, functionID, req.Parameters)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

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
