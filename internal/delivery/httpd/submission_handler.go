package httpd

import (
	"net/http"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/pkg/utils"
)

// Submit runs one submission synchronously and returns its verdict.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var event models.SubmissionEvent
	if err := utils.ReadJSON(w, r, &event); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	sub := event.ToSubmission()
	decision, err := h.submissions.Process(ctx, sub)
	if err != nil {
		h.handleError(w, err, "Failed to process submission")
		return
	}

	if err := h.notifier.DispatchDecision(ctx, sub, decision); err != nil {
		h.logger.Error().Err(err).Str("record_id", decision.Record.ID).Msg("Failed to send notifications")
	}

	writeJSON(w, http.StatusCreated, models.SubmitResponse{
		RecordID:   decision.Record.ID,
		Verdict:    decision.Verdict,
		Suspicious: decision.Suspicious,
	})
}
