package adminserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// respond writes a JSON response with the given status code, logging (but
// not failing the request further) if encoding fails.
func respond(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding admin response", "error", err)
	}
}
