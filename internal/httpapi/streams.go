package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruiping-ai/ruiping/internal/session"
)

func (s *Server) handleTextStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupCase(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	seq := sess.TextStream()
	first := true
	for {
		chunk, err := seq.Next(r.Context())
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, r.Context().Err()) {
				s.log.Warn().Err(err).Str("case_id", sess.ID).Msg("text stream interrupted")
			}
			return
		}
		if first {
			first = false
			if s.metrics != nil {
				s.metrics.ObserveFirstChunkLatency(time.Since(sess.CreatedAt))
			}
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if s.metrics != nil {
			s.metrics.StreamChunks.WithLabelValues("text").Inc()
		}
	}
}

func (s *Server) handleAudioStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupCase(w, r)
	if !ok {
		return
	}

	seq, err := sess.AudioStream()
	if err != nil {
		if errors.Is(err, session.ErrSynthesisDisabled) {
			respondError(w, http.StatusBadRequest, "synthesis_disabled", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", audioContentType(s.cfg.FishAudioOutputFormat))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		chunk, err := seq.Next(r.Context())
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, r.Context().Err()) {
				s.log.Warn().Err(err).Str("case_id", sess.ID).Msg("audio stream interrupted")
			}
			return
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if s.metrics != nil {
			s.metrics.StreamChunks.WithLabelValues("audio").Inc()
		}
	}
}

func (s *Server) lookupCase(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_case_id", "missing case id")
		return nil, false
	}
	sess, err := s.registry.Lookup(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "case_not_found", err.Error())
		return nil, false
	}
	return sess, true
}

func audioContentType(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mp3":
		return "audio/mpeg"
	case "wav", "pcm":
		return "audio/wav"
	case "opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
