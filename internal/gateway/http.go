// Package gateway is the thin HTTP shim over the pipeline: JSON in, JSON
// out, error-class to status-code mapping. Transport is an external
// collaborator in this design, so nothing here carries business logic.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aura/internal/types"
)

// Negotiator is the slice of the pipeline the gateway needs.
type Negotiator interface {
	Execute(ctx context.Context, sig types.Signal) (types.Decision, error)
}

// Handler serves the negotiation endpoint.
type Handler struct {
	pipeline Negotiator
	logger   *zap.Logger
}

// New returns the gateway handler.
func New(pipeline Negotiator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pipeline: pipeline, logger: logger}
}

// Router returns the HTTP mux for the gateway.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /negotiate", h.handleNegotiate)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	return mux
}

func (h *Handler) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	var sig types.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if sig.RequestID == "" {
		sig.RequestID = uuid.NewString()
	}

	dec, err := h.pipeline.Execute(r.Context(), sig)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, types.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case dec.Status != "":
		// Warning-class error: the decision is valid, persistence degraded.
		h.logger.Warn("decision returned with warning",
			zap.String("request_id", sig.RequestID),
			zap.Error(err))
	default:
		h.logger.Error("pipeline failed", zap.String("request_id", sig.RequestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dec)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
