package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/voxisys/utapi/internal/lister"
	"github.com/voxisys/utapi/internal/telemetry"
)

// writeError writes a JSON error body with the given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
	if rid, ok := GetRequestID(ctx); ok {
		h.Log.Debug("wrote error response", "requestId", rid, "status", code, "msg", msg)
	}
}

// mapQueryError maps dispatcher errors to HTTP responses.
func (h *Handler) mapQueryError(ctx context.Context, w http.ResponseWriter, err error) {
	rid, _ := GetRequestID(ctx)
	switch {
	case errors.Is(err, lister.ErrInvalidRequest):
		h.Log.Warn("query rejected", "requestId", rid, "error", err)
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
	default:
		// The store-level detail was already logged closer to the store;
		// the caller gets the opaque form.
		h.Log.Error("query failed", "requestId", rid, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "internal error")
	}
}

// rejectUnauthorized answers every authentication failure identically; the
// reason stays in the log.
func (h *Handler) rejectUnauthorized(ctx context.Context, w http.ResponseWriter, err error) {
	telemetry.AuthFailures.Inc()
	rid, _ := GetRequestID(ctx)
	h.Log.Warn("request rejected", "requestId", rid, "reason", err)
	h.writeError(ctx, w, http.StatusForbidden, "access denied")
}
