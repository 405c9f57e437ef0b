package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/leadgen-api/internal/api"
	apiMiddleware "github.com/phrazzld/leadgen-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewOwnerMiddleware(app.defaultOwner.ID).ResolveOwner)

	jobHandler := api.NewJobHandler(app.jobService, app.logger)
	submitLimiter := apiMiddleware.NewRateLimiter(app.config.API.SubmitRate, app.config.API.SubmitBurst)

	api.RegisterRoutes(r, jobHandler, submitLimiter.Limit)

	return r
}
