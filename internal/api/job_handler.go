package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/leadgen-api/internal/api/shared"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/export"
	"github.com/phrazzld/leadgen-api/internal/platform/logger"
	"github.com/phrazzld/leadgen-api/internal/redact"
	"github.com/phrazzld/leadgen-api/internal/service"
)

// JobHandler handles lead generation job HTTP requests
type JobHandler struct {
	jobService service.JobService
	validator  *validator.Validate
	logger     *slog.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobService service.JobService, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		jobService: jobService,
		validator:  validator.New(),
		logger:     logger.With(slog.String("component", "job_handler")),
	}
}

// requestLogger prefers the request-scoped logger installed by the trace middleware.
func (h *JobHandler) requestLogger(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), h.logger)
}

// SubmitJob handles POST /api/jobs requests
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r)

	ownerID, ok := shared.GetOwnerID(r.Context())
	if !ok {
		log.Error("owner ID missing from request context")
		shared.RespondWithError(w, r, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, shared.ErrEmptyBody) {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	params := req.resolve()
	if err := h.validator.Struct(params); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	job, err := h.jobService.Submit(r.Context(), ownerID, domain.Intent(params.Intent), params.LeadCount)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("job accepted",
		slog.Int64("job_id", job.ID),
		slog.String("intent", string(job.Intent)),
		slog.Int("lead_count", job.LeadCount))

	// Processing happens asynchronously, so the job is returned as accepted.
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// GetJob handles GET /api/jobs/{id} requests
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := handlePathJobID(w, r, h.requestLogger(r))
	if !ok {
		return
	}

	job, err := h.jobService.GetJob(r.Context(), jobID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// ListResults handles GET /api/jobs/{id}/results requests
func (h *JobHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	jobID, ok := handlePathJobID(w, r, h.requestLogger(r))
	if !ok {
		return
	}

	skip, err := getQueryInt(r, "skip", 0)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	limit, err := getQueryInt(r, "limit", service.DefaultResultsLimit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	leads, err := h.jobService.ListResults(r.Context(), jobID, skip, limit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, leadsToResponse(leads))
}

// ExportResults handles GET /api/jobs/{id}/export requests by streaming the
// job's leads as a CSV attachment.
func (h *JobHandler) ExportResults(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r)

	jobID, ok := handlePathJobID(w, r, log)
	if !ok {
		return
	}

	// Resolve the job before committing to a 200 response.
	if _, err := h.jobService.GetJob(r.Context(), jobID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s", export.Filename(jobID)))
	w.WriteHeader(http.StatusOK)

	if err := h.jobService.ExportCSV(r.Context(), w, jobID); err != nil {
		// Headers are already sent; the client sees a truncated file.
		log.Error("csv export interrupted",
			slog.Int64("job_id", jobID),
			slog.String("error", redact.Error(err)))
	}
}

// Health handles GET /health requests
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.requestLogger(r).Error("failed to write health check response", "error", err)
	}
}
