package httpd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/internal/notify"
	"github.com/RubachokBoss/video-submission-checker/internal/service"
	"github.com/RubachokBoss/video-submission-checker/internal/worker"
	"github.com/RubachokBoss/video-submission-checker/pkg/utils"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatusProvider interface {
	GetStats() worker.WorkerStats
}

// Dependencies of the admin API. Status, Metrics and Notifier are optional.
type Dependencies struct {
	Submissions service.SubmissionService
	Reports     service.ReportService
	Notifier    notify.Notifier
	Ledger      Pinger
	Window      Pinger
	Status      StatusProvider
	Metrics     http.Handler
	MetricsPath string
}

type Handler struct {
	submissions service.SubmissionService
	reports     service.ReportService
	notifier    notify.Notifier
	ledger      Pinger
	window      Pinger
	status      StatusProvider
	metrics     http.Handler
	metricsPath string
	logger      zerolog.Logger
	startedAt   time.Time
}

func NewHandler(deps Dependencies, logger zerolog.Logger) *Handler {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewNopNotifier(logger)
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	return &Handler{
		submissions: deps.Submissions,
		reports:     deps.Reports,
		notifier:    deps.Notifier,
		ledger:      deps.Ledger,
		window:      deps.Window,
		status:      deps.Status,
		metrics:     deps.Metrics,
		metricsPath: deps.MetricsPath,
		logger:      logger,
		startedAt:   time.Now(),
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/status", h.GetServiceStatus)
	if h.metrics != nil {
		router.Method(http.MethodGet, h.metricsPath, h.metrics)
	}

	router.Route("/api/v1", func(api chi.Router) {
		api.Post("/submissions", h.Submit)

		api.Route("/reports", func(r chi.Router) {
			r.Get("/stats", h.GetStats)
			r.Get("/search", h.Search)
			r.Get("/daily", h.GetDailySummary)
		})

		api.Get("/workers/{worker_id}/stats", h.GetWorkerStats)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	utils.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	utils.ErrorResponse(w, status, message)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	utils.SuccessResponse(w, data)
}

// Маппинг доменных ошибок на HTTP статусы
func (h *Handler) handleError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrInvalidSubmission), errors.Is(err, models.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case service.IsProcessingError(err):
		h.logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusServiceUnavailable, msg)
	default:
		h.logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
