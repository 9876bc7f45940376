package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/logger"
)

// handleError centralizes error handling for HTTP responses. Only internal
// and upstream failures are logged as faults; everything else is the
// caller's problem and logged at warn.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	if stderrors.Is(err, context.Canceled) && r.Context().Err() != nil {
		log.Debug("client went away: %v", err)
		return
	}

	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.NewInternalError(err)
	}

	switch appErr.Code {
	case errors.ErrCodeInternal, errors.ErrCodeUpstreamUnavailable:
		log.Error("server error: %v", appErr)
	case errors.ErrCodeRateLimitExceeded, errors.ErrCodeLanguageConformance:
		log.Info("request refused: %v", appErr)
	default:
		log.Warn("client error: %v", appErr)
	}

	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeErrorBody(w, status, appErr.Code, appErr.Message)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func notFoundRoute(r *http.Request) error {
	return errors.NewNotFoundError("route", r.Method+" "+r.URL.Path)
}
