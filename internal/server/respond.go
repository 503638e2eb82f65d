package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/hallvoice/internal/gateway"
	"github.com/MrWong99/hallvoice/internal/observe"
)

// failureBody is the JSON shape of every error response.
type failureBody struct {
	OK       bool                    `json:"ok"`
	Message  string                  `json:"message"`
	Failures []gateway.FailureRecord `json:"failures"`
}

// tokenBody is the success shape of /voice/token.
type tokenBody struct {
	OK       bool            `json:"ok"`
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string, failures []gateway.FailureRecord) {
	if failures == nil {
		failures = []gateway.FailureRecord{}
	}
	writeJSON(w, status, failureBody{OK: false, Message: msg, Failures: failures})
}

// writeError maps gateway errors onto HTTP statuses: configuration 500,
// validation 400, exhaustion 502, anything else 500 with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cfgErr        *gateway.ConfigurationError
		validationErr *gateway.ValidationError
		exhausted     *gateway.ExhaustedError
	)
	log := observe.Logger(r.Context())

	switch {
	case errors.As(err, &validationErr):
		writeFailure(w, http.StatusBadRequest, validationErr.Error(), nil)
	case errors.As(err, &cfgErr):
		log.Error("gateway not configured", "err", err)
		writeFailure(w, http.StatusInternalServerError, cfgErr.Error(), nil)
	case errors.As(err, &exhausted):
		log.Warn("all candidates failed", "kind", exhausted.Kind, "attempts", len(exhausted.Failures))
		writeFailure(w, http.StatusBadGateway, exhaustedMessage(exhausted.Kind), exhausted.Failures)
	default:
		log.Error("request failed", "err", err)
		writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

func exhaustedMessage(kind string) string {
	if kind == gateway.KindToken {
		return "all token endpoints failed"
	}
	return "all voice and model candidates failed"
}
