package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stxlabs/tracker-api/internal/api"
	apiMiddleware "github.com/stxlabs/tracker-api/internal/api/middleware"
)

// setupRouter creates the router with every route and middleware.
func (app *application) setupRouter() http.Handler {
	authHandler := api.NewAuthHandler(app.userService, app.jwtService, &app.config.Auth, app.logger)
	projectHandler := api.NewProjectHandler(app.projectService, app.logger)
	issueHandler := api.NewIssueHandler(app.issueService, app.logger)
	attachmentHandler := api.NewAttachmentHandler(app.attachmentService, maxUploadBytes(app.config.Storage), app.logger)

	return newRouter(app, authHandler, projectHandler, issueHandler, attachmentHandler)
}

func newRouter(
	app *application,
	authHandler *api.AuthHandler,
	projectHandler *api.ProjectHandler,
	issueHandler *api.IssueHandler,
	attachmentHandler *api.AttachmentHandler,
) http.Handler {
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.RefreshToken)
		r.Get("/auth/activate", authHandler.Activate)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/users/me", authHandler.Me)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.Post("/", projectHandler.Create)
				r.Get("/{id}", projectHandler.Get)
				r.Patch("/{id}", projectHandler.Update)
				r.Delete("/{id}", projectHandler.Delete)
				r.Get("/{id}/issues", projectHandler.Issues)
			})

			r.Route("/issues", func(r chi.Router) {
				r.Get("/", issueHandler.List)
				r.Post("/", issueHandler.Create)
				r.Get("/{id}", issueHandler.Get)
				r.Patch("/{id}", issueHandler.Update)
				r.Delete("/{id}", issueHandler.Delete)
				r.Get("/{id}/attachments", attachmentHandler.List)
				r.Post("/{id}/attachments", attachmentHandler.Upload)
			})

			r.Delete("/attachments/{id}", attachmentHandler.Delete)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
