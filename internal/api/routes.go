package api

import (
	"net/http"

	"opsdash/internal/auth"
	"opsdash/internal/model"
	"opsdash/internal/service"
	"opsdash/internal/ws"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Dependencies struct {
	Hub       *ws.Hub
	Log       *zap.Logger
	Auth      auth.Authenticator
	Tokens    *auth.Tokens
	Guard     *auth.Guard
	Users     *service.UserService
	Functions *service.FunctionService
	Requests  *service.RequestService
	Dashboard *service.DashboardService
}

func Routes(d Dependencies) http.Handler {
	r := chi.NewRouter()

	// Add request logging middleware
	r.Use(RequestLogger(d.Log))

	// Public endpoints
	r.Post("/auth/login", d.login)

	// Everything else requires a resolved identity
	r.Group(func(r chi.Router) {
		r.Use(d.Guard.Middleware)

		r.Get("/auth/me", d.me)
		r.Post("/auth/refresh", d.refresh)
		r.Post("/auth/logout", d.logout)
		r.Get("/auth/validate", d.validate)

		// Function catalog
		r.Get("/functions", d.listFunctions)
		r.Get("/functions/{id}", d.getFunction)
		r.Post("/functions/{id}/execute", d.executeFunction)

		// Function administration
		r.Group(func(r chi.Router) {
			r.Use(d.Guard.RoleMiddleware(model.RoleAdmin))
			r.Post("/functions", d.createFunction)
			r.Put("/functions/{id}", d.updateFunction)
			r.Delete("/functions/{id}", d.deleteFunction)
		})

		// Request workflow
		r.Get("/requests", d.listRequests)
		r.Post("/requests", d.createRequest)
		r.Get("/requests/{id}", d.getRequest)
		r.Delete("/requests/{id}", d.deleteRequest)

		r.Group(func(r chi.Router) {
			r.Use(d.Guard.RoleMiddleware(model.RoleLeader))
			r.Post("/requests/{id}/approve", d.approveRequest)
			r.Post("/requests/{id}/reject", d.rejectRequest)
		})

		// Dashboard
		r.Get("/dashboard/stats", d.dashboardStats)
		r.Get("/dashboard/recent-activity", d.recentActivity)

		// User administration; get/update also allow self access
		r.Get("/users/{id}", d.getUser)
		r.Put("/users/{id}", d.updateUser)
		r.Group(func(r chi.Router) {
			r.Use(d.Guard.RoleMiddleware(model.RoleAdmin))
			r.Get("/users", d.listUsers)
			r.Post("/users", d.createUser)
			r.Delete("/users/{id}", d.deleteUser)
		})

		// WebSocket endpoint
		r.Get("/ws", d.wsHandler)
	})

	return r
}
