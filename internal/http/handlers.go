package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"ai-interview-audio-service/internal/service/feedback"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter used by browser WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (h *handlers) readiness(w http.ResponseWriter, _ *http.Request) {
	if h.App != nil && !h.App.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handlers) sessionStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sessionKey")
	if _, err := h.Verifier.Verify(bearerToken(r)); err != nil {
		h.Metrics.RecordAuthRejected("http")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	st, ok := h.Orchestrator.Status(key)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) generateFeedback(w http.ResponseWriter, r *http.Request) {
	if h.Feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback generation is not configured")
		return
	}
	if _, err := h.Verifier.Verify(bearerToken(r)); err != nil {
		h.Metrics.RecordAuthRejected("http")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req feedback.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fb, err := h.Feedback.Generate(r.Context(), req)
	switch {
	case errors.Is(err, feedback.ErrEmptyAnswer):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("Feedback generation failed")
		writeError(w, http.StatusBadGateway, "feedback generation failed")
	default:
		writeJSON(w, http.StatusOK, fb)
	}
}
