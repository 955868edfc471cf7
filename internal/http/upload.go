package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"ai-interview-audio-service/internal/service/audio"
)

// uploadAnswer serves POST /v1/sessions/{sessionKey}/answers. The body is
// either multipart with an audio_file part or a raw WAV file.
func (h *handlers) uploadAnswer(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sessionKey")
	logger := hlog.FromRequest(r).With().Str("sessionKey", key).Logger()

	if _, err := h.Verifier.Verify(bearerToken(r)); err != nil {
		h.Metrics.RecordAuthRejected("http")
		h.Metrics.RecordUpload("unauthorized")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Options.MaxUploadBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("audio_file")
		if err != nil {
			h.Metrics.RecordUpload("invalid")
			writeError(w, http.StatusBadRequest, "missing audio_file part")
			return
		}
		defer file.Close()
		src = file
	}

	wav, err := audio.ParseWAV(src)
	if err != nil {
		h.Metrics.RecordUpload("invalid")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target := h.Options.TargetRate
	if target <= 0 {
		target = audio.ProcessingRate
	}
	samples, err := audio.Resample(wav.Samples, wav.SampleRate, target)
	if err != nil {
		h.Metrics.RecordUpload("invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seg := audio.NewSegment(h.Orchestrator.NextSegmentID(key), samples, target)

	res, err := h.Orchestrator.ProcessUpload(r.Context(), key, seg)
	if err != nil {
		h.Metrics.RecordUpload("error")
		logger.Error().Err(err).Msg("Upload processing failed")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	h.Metrics.RecordUpload("ok")
	writeJSON(w, http.StatusOK, res)
}
