package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.GetStats(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.handleError(w, err, "Failed to get statistics")
		return
	}

	writeSuccess(w, stats)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	result, err := h.reports.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.handleError(w, err, "Failed to search submissions")
		return
	}

	writeSuccess(w, result)
}

func (h *Handler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.DailySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.handleError(w, err, "Failed to get daily summary")
		return
	}

	writeSuccess(w, summary)
}

func (h *Handler) GetWorkerStats(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "worker_id")
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "Worker ID is required")
		return
	}

	stats, err := h.reports.GetWorkerStats(r.Context(), workerID)
	if err != nil {
		h.handleError(w, err, "Failed to get worker stats")
		return
	}

	writeSuccess(w, stats)
}
