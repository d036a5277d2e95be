// Package httpapi is the HTTP boundary: routing, middleware, payload
// validation, and the uniform error envelope.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Sumatoshi-tech/fiberplan/internal/apperr"
)

// Endpoint-specific failures.
var (
	errHealthCheckFailed = apperr.New("health_check_failed",
		"Health check failed.", http.StatusInternalServerError)

	errSummaryFetchFailed = apperr.New("summary_fetch_failed",
		"Failed to fetch summary.", http.StatusInternalServerError)

	errDistrictsFetchFailed = apperr.New("districts_fetch_failed",
		"Failed to fetch districts.", http.StatusInternalServerError)

	errFranchisesFetchFailed = apperr.New("franchises_fetch_failed",
		"Failed to fetch franchises.", http.StatusInternalServerError)
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON renders v with the given status. Encoding failures are logged,
// not surfaced; the status line has already been committed.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logger.Error("response encoding failed", slog.Any("error", err))
	}
}

// writeError classifies err and renders the standard envelope. Unclassified
// errors surface as internal_error and are logged with the request context.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := apperr.From(err)

	if appErr.Status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("error", err),
		)
	}

	writeAppError(w, r, logger, appErr)
}

// writeFailure renders a classified error while logging the underlying cause.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, appErr *apperr.Error, cause error) {
	logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.String("code", appErr.Code),
		slog.Any("error", cause),
	)

	writeAppError(w, r, logger, appErr)
}

func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, appErr *apperr.Error) {
	writeJSON(w, logger, appErr.Status, errorEnvelope{
		Error: errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		RequestID: RequestID(r.Context()),
	})
}
