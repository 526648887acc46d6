package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"ticketwatch/pkg/logger"

	"go.uber.org/zap"
)

// WriteJSON writes v as the JSON body of a response with the given status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(ctx, "could not encode response", zap.Error(err))
	}
}
