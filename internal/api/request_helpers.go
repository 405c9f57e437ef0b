package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/platform/logger"
)

// getPathJobID extracts a positive integer job ID from the URL path.
func getPathJobID(r *http.Request, paramName string) (int64, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return 0, domain.NewValidationError(paramName, "is required")
	}

	id, err := strconv.ParseInt(pathParam, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(paramName, "must be a positive integer")
	}
	return id, nil
}

// getQueryInt parses an optional non-negative integer query parameter,
// returning def when it is absent.
func getQueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return v, nil
}

// handlePathJobID extracts the job ID path parameter and writes a 400
// response if it is invalid.
//
// Returns:
//   - (jobID, true): the parsed job ID
//   - (0, false): the request was rejected and a response written
func handlePathJobID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (int64, bool) {
	if log == nil {
		log = logger.FromContext(r.Context())
	}

	jobID, err := getPathJobID(r, "id")
	if err != nil {
		log.Debug("invalid job id", slog.String("value", chi.URLParam(r, "id")))
		HandleAPIError(w, r, err, "")
		return 0, false
	}
	return jobID, true
}
