package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/infra/adapters/display"
	"mbti-report-console/internal/infra/logging"
	"mbti-report-console/internal/usecase"
)

// Page is the part of the display the console API reads and clicks.
type Page interface {
	Snapshot() display.Snapshot
	Trigger(ctx context.Context, id model.ControlID, fields map[string]string) error
}

// Server exposes the console page over HTTP.
type Server struct {
	reports        usecase.ReportUseCase
	page           Page
	metrics        bool
	requestTimeout time.Duration
	log            *zerolog.Logger
}

func NewServer(reports usecase.ReportUseCase, page Page, metricsEnabled bool, requestTimeout time.Duration, logger *zerolog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &Server{
		reports:        reports,
		page:           page,
		metrics:        metricsEnabled,
		requestTimeout: requestTimeout,
		log:            logging.Component(logger, "web"),
	}
}

// Router builds the console routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.requestTimeout))

		r.Get("/page", s.handlePage)
		r.Get("/service/health", s.handleServiceHealth)
		r.Post("/reports/{workflow}", s.handleSubmit)
		r.Post("/tabs/{tab}/activate", s.handleActivate)
		r.Post("/controls/{control}/trigger", s.handleTrigger)
		r.Post("/group-insight", s.handleGroupInsight)
		r.Post("/group-insight/open", s.handleOpenGroupInsight)
		r.Get("/outputs/{filename}", s.handleDownload)
	})
	return r
}
