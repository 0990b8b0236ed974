package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers groups the handlers mounted by RegisterRoutes
type Handlers struct {
	Tasks   *TaskHandler
	History *HistoryHandler
	Health  *HealthHandler
}

// RegisterRoutes mounts the API on r. Reads are public; requests that
// change tasks pass through authenticate.
func RegisterRoutes(r chi.Router, h Handlers, authenticate func(http.Handler) http.Handler) {
	r.Get("/health", h.Health.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", h.Tasks.ListTasks)
		r.Get("/tasks/{id}", h.Tasks.GetTask)
		r.Get("/history", h.History.ListHistory)
		r.Get("/history/{id}", h.History.GetHistoryRecord)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/tasks/empty", h.Tasks.LaunchEmptyTask)
			r.Post("/tasks/{id}/stop", h.Tasks.StopTask)
		})
	})
}
