package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/casestore"
	"github.com/ruiping-ai/ruiping/internal/config"
	"github.com/ruiping-ai/ruiping/internal/llm"
	"github.com/ruiping-ai/ruiping/internal/observability"
	"github.com/ruiping-ai/ruiping/internal/session"
	"github.com/ruiping-ai/ruiping/internal/stream"
	"github.com/ruiping-ai/ruiping/internal/tts"
)

type nopSink struct{}

func (nopSink) Save(ctx context.Context, _ string, src stream.Sequence[[]byte]) error {
	for {
		if _, err := src.Next(ctx); err != nil {
			return nil
		}
	}
}

type fakeCatalog struct {
	list tts.VoiceList
	err  error
}

func (f *fakeCatalog) ListVoices(context.Context, tts.ListQuery) (tts.VoiceList, error) {
	return f.list, f.err
}

type restrictedClient struct {
	*llm.MockClient
	allowed string
}

func (c *restrictedClient) Validate(prompt, model string) error {
	if err := c.MockClient.Validate(prompt, model); err != nil {
		return err
	}
	if model != c.allowed {
		return llm.ErrUnsupportedModel
	}
	return nil
}

func testServer(t *testing.T, metrics *observability.Metrics) *Server {
	t.Helper()
	cfg := config.Config{
		OpenRouterDefaultModel: "deepseek/deepseek-chat",
		FishAudioOutputFormat:  "mp3",
		FrontendOrigin:         "http://localhost:5173",
		TTSSpeedMin:            0.5,
		TTSSpeedMax:            2.0,
	}
	client := &restrictedClient{MockClient: llm.NewMockClient("這個嘛，", "只能給個NPC", "[NPC]", "，下一位。"), allowed: cfg.OpenRouterDefaultModel}
	registry := session.NewRegistry(time.Minute, metrics, zerolog.Nop())
	return New(
		cfg,
		registry,
		casestore.NewInMemoryStore(),
		client,
		tts.NewMockSynthesizer(),
		nopSink{},
		&fakeCatalog{list: tts.VoiceList{Total: 1, Items: []tts.VoiceModel{{ID: "m1", Title: "渾厚男聲"}}}},
		metrics,
		zerolog.Nop(),
	)
}

func createCase(t *testing.T, srv *Server, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/cases", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create case status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp createCaseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CaseID == "" {
		t.Fatal("empty case_id")
	}
	return resp.CaseID
}

func TestCreateCaseAndStreamText(t *testing.T) {
	srv := testServer(t, nil)
	id := createCase(t, srv, `{"subject":"泡麵"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/cases/"+id+"/text", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("text stream status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "[NPC]") {
		t.Fatalf("tier marker missing from text stream: %q", body)
	}
	if !strings.Contains(body, "只能給個NPC") {
		t.Fatalf("text content missing: %q", body)
	}
}

func TestCreateCaseWithAudio(t *testing.T) {
	srv := testServer(t, nil)
	id := createCase(t, srv, `{"subject":"泡麵","tts":true,"tts_model":"v1"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/cases/"+id+"/audio", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("audio stream status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("Content-Type = %q, want audio/mpeg", ct)
	}
	body := rec.Body.String()
	if body == "" {
		t.Fatal("no audio bytes")
	}
	if strings.Contains(body, "[NPC]") {
		t.Fatalf("tier marker leaked into audio: %q", body)
	}
}

func TestAudioDisabledIsBadRequest(t *testing.T) {
	srv := testServer(t, nil)
	id := createCase(t, srv, `{"subject":"泡麵"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/cases/"+id+"/audio", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "synthesis_disabled") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestUnknownCaseIsNotFound(t *testing.T) {
	srv := testServer(t, nil)
	for _, path := range []string{"/api/cases/deadbeef/text", "/api/cases/deadbeef/audio"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestCreateCaseValidation(t *testing.T) {
	srv := testServer(t, nil)
	cases := []struct {
		name string
		body string
		code string
	}{
		{"empty subject", `{"subject":"  "}`, "empty_subject"},
		{"empty body", ``, "empty_body"},
		{"bad tier", `{"subject":"泡麵","tier":"神"}`, "invalid_tier"},
		{"bad speed", `{"subject":"泡麵","tts_speed":9.5}`, "invalid_speed"},
		{"unknown model", `{"subject":"泡麵","llm_model":"openai/gpt-99"}`, "unsupported_model"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/cases", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tc.code) {
			t.Fatalf("%s: body = %s, want code %s", tc.name, rec.Body.String(), tc.code)
		}
	}
	if srv.registry.Len() != 0 {
		t.Fatalf("rejected requests registered sessions: Len() = %d", srv.registry.Len())
	}
}

type startFailingClient struct {
	*llm.MockClient
}

func (c *startFailingClient) StreamCompletion(context.Context, string, string) (stream.Sequence[string], error) {
	return nil, errors.New("upstream unavailable")
}

func TestUpstreamFailureDoesNotRegisterCase(t *testing.T) {
	srv := testServer(t, nil)
	srv.llm = &startFailingClient{MockClient: llm.NewMockClient()}

	req := httptest.NewRequest(http.MethodPost, "/api/cases", strings.NewReader(`{"subject":"泡麵"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if srv.registry.Len() != 0 {
		t.Fatalf("failed start registered a session: Len() = %d", srv.registry.Len())
	}
}

func TestListVoices(t *testing.T) {
	srv := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/voices?title=男&page_size=9", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list tts.VoiceList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].ID != "m1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCORSHeadersAndPreflight(t *testing.T) {
	srv := testServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/cases", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestRecentCases(t *testing.T) {
	srv := testServer(t, nil)
	createCase(t, srv, `{"subject":"泡麵"}`)
	createCase(t, srv, `{"subject":"加班文化"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Cases []casestore.CaseRecord `json:"cases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Cases) != 2 {
		t.Fatalf("cases = %d, want 2", len(resp.Cases))
	}
}
