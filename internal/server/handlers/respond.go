package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/boardsync/pkg/api"
)

// writeJSON отправляет ответ в JSON с заданным статусом
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError отправляет api.ErrorResponse
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, errMsg, message string) {
	writeJSON(w, logger, status, api.ErrorResponse{Error: errMsg, Message: message})
}
