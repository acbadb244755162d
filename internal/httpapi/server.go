package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/casestore"
	"github.com/ruiping-ai/ruiping/internal/config"
	"github.com/ruiping-ai/ruiping/internal/llm"
	"github.com/ruiping-ai/ruiping/internal/observability"
	"github.com/ruiping-ai/ruiping/internal/session"
	"github.com/ruiping-ai/ruiping/internal/tts"
)

// VoiceCatalog lists voice models for the picker UI.
type VoiceCatalog interface {
	ListVoices(ctx context.Context, query tts.ListQuery) (tts.VoiceList, error)
}

type Server struct {
	cfg      config.Config
	registry *session.Registry
	store    casestore.Store
	llm      llm.Client
	synth    tts.Synthesizer
	sink     session.AudioSink
	catalog  VoiceCatalog
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func New(
	cfg config.Config,
	registry *session.Registry,
	store casestore.Store,
	llmClient llm.Client,
	synth tts.Synthesizer,
	sink session.AudioSink,
	catalog VoiceCatalog,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		store:    store,
		llm:      llmClient,
		synth:    synth,
		sink:     sink,
		catalog:  catalog,
		metrics:  metrics,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/cases", s.handleCreateCase)
	r.Get("/api/cases/{id}/text", s.handleTextStream)
	r.Get("/api/cases/{id}/audio", s.handleAudioStream)
	r.Get("/api/cases", s.handleRecentCases)
	r.Get("/api/voices", s.handleListVoices)

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(s.cfg.FrontendOrigin)
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.registry.Len(),
	})
}

func (s *Server) handleRecentCases(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.RecentCases(r.Context(), 20)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if records == nil {
		records = []casestore.CaseRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"cases": records})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
