package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts service errors to HTTP responses. Anything that
// is not a domain error is logged and reported as a 500 without its message.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	var status int
	switch de.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict, domain.KindInsufficientStock, domain.KindInvalidTransition:
		status = http.StatusConflict
	case domain.KindPaymentSignature:
		status = http.StatusBadRequest
	case domain.KindPaymentSession:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	resp := ErrorResponse{Error: de.Message, Code: de.Code}
	if de.Kind == domain.KindInsufficientStock {
		resp.Details = map[string]any{"available": de.Available}
	}
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", de.Code).Msg("request failed")
	}
	respondJSON(w, status, resp)
}
