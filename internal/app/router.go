package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modeer/staffprov/internal/observability"
	"github.com/modeer/staffprov/internal/platform/httpx"
	"github.com/modeer/staffprov/internal/provisioning"
	"github.com/modeer/staffprov/jobs"
)

// ReportCollector assembles the reports a worker has stored.
type ReportCollector interface {
	Collect(ctx context.Context, runID string) (provisioning.Summary, error)
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
	Reports    ReportCollector
}

// NewRouter builds the ops router served next to the worker.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Reports != nil {
		r.Get("/reports", func(w http.ResponseWriter, r *http.Request) {
			summary, err := params.Reports.Collect(r.Context(), r.URL.Query().Get("run_id"))
			if err != nil {
				if params.Logger != nil {
					params.Logger.Error("collect reports", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			httpx.JSON(w, http.StatusOK, summary)
		})
	}

	return r
}
