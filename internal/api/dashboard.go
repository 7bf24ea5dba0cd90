package api

import (
	"net/http"

	"opsdash/internal/auth"
)

func (d Dependencies) dashboardStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Identity(r.Context())

	stats, err := d.Dashboard.Stats(r.Context(), actor)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (d Dependencies) recentActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := d.Dashboard.Recent(r.Context())
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, activity)
}
