package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openquiz/quizmaster-api/internal/api"
	apimiddleware "github.com/openquiz/quizmaster-api/internal/api/middleware"
	"github.com/openquiz/quizmaster-api/internal/domain"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	authMiddleware := apimiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)

	taskHandler := api.NewTaskHandler(app.runner, app.taskStore, app.logger)
	artifactHandler := api.NewArtifactHandler(app.config.Report.ExportDir, app.logger)

	// The handler takes the cache through an interface; a plain nil
	// *RankingCache inside a non-nil interface would dodge its nil check.
	var rankingCache api.RankingCache
	if app.rankingCache != nil {
		rankingCache = app.rankingCache
	}
	rankingHandler := api.NewRankingHandler(app.quizStore, rankingCache, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Task submission is an admin surface; polling and reads are
			// open to any authenticated user.
			r.With(authMiddleware.RequireRole(domain.RoleAdmin)).
				Post("/tasks", taskHandler.SubmitTask)
			r.Get("/tasks/{taskID}", taskHandler.GetTaskStatus)

			r.Get("/ranking", rankingHandler.GetRanking)

			r.With(authMiddleware.RequireRole(domain.RoleAdmin)).
				Get("/artifacts/{filename}", artifactHandler.GetArtifact)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
