package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/platewise-api/internal/api"
	apiMiddleware "github.com/phrazzld/platewise-api/internal/api/middleware"
	"github.com/phrazzld/platewise-api/internal/api/shared"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthResponse is served by /health
type healthResponse struct {
	Status    string `json:"status"`
	Processor bool   `json:"processor_running"`
}

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.processor, app.config.Task.CompletedTTL, app.logger)
	analysisHandler := api.NewAnalysisHandler(app.workflows, api.DefaultSubmitTimeout, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Submission endpoints answer 202 with the task to poll
		r.Group(func(r chi.Router) {
			r.Use(taskHandler.RequireRunning)
			r.Post("/meals/analyses", analysisHandler.SubmitMealAnalysis)
			r.Post("/meals/analyses/batch", analysisHandler.SubmitBatchAnalysis)
			r.Post("/insights/weekly", analysisHandler.SubmitWeeklyInsight)
		})

		// Task endpoints
		r.Get("/tasks/stats", taskHandler.GetStats)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Delete("/tasks/{id}", taskHandler.CancelTask)

		r.Post("/maintenance/cleanup", taskHandler.Cleanup)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		running := app.processor.Stats().Running
		status := http.StatusOK
		resp := healthResponse{Status: "ok", Processor: running}
		if !running {
			status = http.StatusServiceUnavailable
			resp.Status = "degraded"
		}
		shared.RespondWithJSON(w, r, status, resp)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	return r
}
