package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/stream"
)

// silentText blocks until ctx ends, keeping the write loop parked.
type silentText struct{}

func (silentText) Next(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func fishServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tts/live" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamSynthesisRoundTrip(t *testing.T) {
	srv := fishServer(t, func(conn *websocket.Conn) {
		for {
			var evt struct {
				Event string `json:"event"`
				Text  string `json:"text"`
			}
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			switch evt.Event {
			case "text":
				_ = conn.WriteJSON(map[string]string{
					"event": "audio",
					"audio": base64.StdEncoding.EncodeToString([]byte("bytes:" + strings.TrimSpace(evt.Text))),
				})
			case "stop":
				_ = conn.WriteJSON(map[string]string{"event": "finish"})
				return
			}
		}
	})
	defer srv.Close()

	p := NewFishAudioProvider(FishAudioConfig{APIKey: "k", WSBaseURL: wsURL(srv)}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := p.StreamSynthesis(ctx, stream.FromSlice("這碗泡麵嘛"), "v1", 1.0)
	if err != nil {
		t.Fatalf("StreamSynthesis() error = %v", err)
	}

	var chunks []string
	for {
		chunk, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		chunks = append(chunks, string(chunk))
	}
	if len(chunks) != 1 || chunks[0] != "bytes:這碗泡麵嘛" {
		t.Fatalf("chunks = %v, want one echoed frame", chunks)
	}
}

func TestStreamSynthesisStopsOnContextCancel(t *testing.T) {
	srv := fishServer(t, func(conn *websocket.Conn) {
		// Quiet upstream: read until the client side drops the socket.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	p := NewFishAudioProvider(FishAudioConfig{APIKey: "k", WSBaseURL: wsURL(srv)}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	seq, err := p.StreamSynthesis(ctx, silentText{}, "v1", 1.0)
	if err != nil {
		t.Fatalf("StreamSynthesis() error = %v", err)
	}
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if _, err := seq.Next(waitCtx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() error = %v, want context.Canceled after session cancel", err)
	}
}

func TestStreamSynthesisUpstreamErrorEvent(t *testing.T) {
	srv := fishServer(t, func(conn *websocket.Conn) {
		var evt json.RawMessage
		_ = conn.ReadJSON(&evt) // start
		_ = conn.WriteJSON(map[string]string{"event": "rate_limited", "message": "slow down"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	p := NewFishAudioProvider(FishAudioConfig{APIKey: "k", WSBaseURL: wsURL(srv)}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := p.StreamSynthesis(ctx, silentText{}, "v1", 1.0)
	if err != nil {
		t.Fatalf("StreamSynthesis() error = %v", err)
	}
	_, err = seq.Next(ctx)
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("Next() error = %v, want terminal upstream error", err)
	}
	if !strings.Contains(err.Error(), "rate_limited") {
		t.Fatalf("error = %v, want the upstream event name", err)
	}
}
