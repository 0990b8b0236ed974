package main

import (
	"net/http"

	"github.com/digiflow/taskkeeper/internal/api"
	apiMiddleware "github.com/digiflow/taskkeeper/internal/api/middleware"
	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	api.RegisterRoutes(r, api.Handlers{
		Tasks:   api.NewTaskHandler(app.taskService),
		History: api.NewHistoryHandler(app.taskService),
		Health:  api.NewHealthHandler(app.taskService, app.config.History.Driver != config.HistoryDriverNone),
	}, authMiddleware.Authenticate)

	return r
}
