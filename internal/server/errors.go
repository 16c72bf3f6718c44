package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind rag.Kind) int {
	switch kind {
	case rag.KindInvalidInput:
		return http.StatusBadRequest
	case rag.KindRebuildInProgress:
		return http.StatusConflict
	case rag.KindNoIndex, rag.KindEmptyIndex:
		return http.StatusServiceUnavailable
	case rag.KindEmbedding, rag.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err with its cause and writes the caller-safe envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := rag.KindOf(err)
	status := statusFor(kind)

	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}

	if kind == "" {
		kind = "internal"
	}
	if status == http.StatusConflict || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, r, status, errorBody{Error: errorDetail{
		Kind:      string(kind),
		Message:   rag.Message(err),
		Retryable: rag.Retryable(err),
	}})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
