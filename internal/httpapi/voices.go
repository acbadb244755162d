package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ruiping-ai/ruiping/internal/tts"
)

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondJSON(w, http.StatusOK, tts.VoiceList{Items: []tts.VoiceModel{}})
		return
	}

	query := tts.ListQuery{Title: strings.TrimSpace(r.URL.Query().Get("title"))}
	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_page_size", "page_size must be a positive integer")
			return
		}
		query.PageSize = n
	}
	if v := r.URL.Query().Get("page_number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_page_number", "page_number must be a positive integer")
			return
		}
		query.PageNumber = n
	}

	list, err := s.catalog.ListVoices(r.Context(), query)
	if err != nil {
		s.countProviderError()
		respondError(w, http.StatusBadGateway, "catalog_unavailable", err.Error())
		return
	}
	if list.Items == nil {
		list.Items = []tts.VoiceModel{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) countProviderError() {
	if s.metrics == nil {
		return
	}
	s.metrics.ProviderErrors.WithLabelValues("fishaudio", "catalog").Inc()
}
