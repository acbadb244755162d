package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/reliability"
	"github.com/ruiping-ai/ruiping/internal/stream"
)

type FishAudioConfig struct {
	APIKey       string
	WSBaseURL    string
	HTTPBaseURL  string
	OutputFormat string // mp3, wav or pcm
	Latency      string // normal or balanced
}

// FishAudioProvider synthesizes speech over the Fish Audio live websocket.
type FishAudioProvider struct {
	cfg FishAudioConfig
	log zerolog.Logger
}

func NewFishAudioProvider(cfg FishAudioConfig, log zerolog.Logger) *FishAudioProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.fish.audio"
	}
	if strings.TrimSpace(cfg.HTTPBaseURL) == "" {
		cfg.HTTPBaseURL = "https://api.fish.audio"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3"
	}
	if strings.TrimSpace(cfg.Latency) == "" {
		cfg.Latency = "balanced"
	}
	return &FishAudioProvider{cfg: cfg, log: log.With().Str("component", "fishaudio").Logger()}
}

// OutputFormat reports the configured audio encoding so the HTTP layer and
// the artifact writer can agree on content type and file extension.
func (p *FishAudioProvider) OutputFormat() string { return p.cfg.OutputFormat }

// StreamSynthesis dials the live TTS socket, forwards text chunks as they
// are pulled from text, and yields audio chunks as they come back.
func (p *FishAudioProvider) StreamSynthesis(ctx context.Context, text stream.Sequence[string], voiceID string, speed float64) (stream.Sequence[[]byte], error) {
	if speed <= 0 {
		speed = 1.0
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.cfg.APIKey)

	url := strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/tts/live"
	conn, err := p.dial(ctx, url, headers)
	if err != nil {
		return nil, err
	}

	s := &fishStream{
		ctx:     ctx,
		conn:    conn,
		out:     stream.NewPipe[[]byte](64),
		stopped: make(chan struct{}),
		log:     p.log,
	}

	start := map[string]any{
		"event": "start",
		"request": map[string]any{
			"reference_id": voiceID,
			"format":       p.cfg.OutputFormat,
			"latency":      p.cfg.Latency,
			"prosody":      map[string]any{"speed": speed},
		},
	}
	if err := s.writeJSON(start); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start tts stream: %w", err)
	}

	go s.writeLoop(ctx, text)
	go s.readLoop()
	go s.watchContext()
	return s.out, nil
}

// dial retries transient websocket handshake failures a few times before
// giving up. A rejected handshake with a non-retryable status fails fast.
func (p *FishAudioProvider) dial(ctx context.Context, url string, headers http.Header) (*websocket.Conn, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt, 200*time.Millisecond, time.Second)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		conn, res, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if res != nil && !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return nil, fmt.Errorf("dial tts websocket: status %d: %w", res.StatusCode, err)
		}
		p.log.Warn().Err(err).Int("attempt", attempt+1).Msg("tts dial failed")
	}
	return nil, fmt.Errorf("dial tts websocket: %w", lastErr)
}

type fishStream struct {
	ctx       context.Context
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	out       *stream.Pipe[[]byte]
	stopped   chan struct{}
	log       zerolog.Logger
}

// watchContext closes the socket when the session context ends, which is the
// only way to unblock a read loop parked on a quiet connection.
func (s *fishStream) watchContext() {
	select {
	case <-s.ctx.Done():
		s.fail(s.ctx.Err())
	case <-s.stopped:
	}
}

func (s *fishStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// writeLoop pulls text chunks and forwards them upstream. An input error is
// not fatal here: the stop event is still sent so the synthesis side flushes
// whatever it already received, and the read loop terminates the output.
func (s *fishStream) writeLoop(ctx context.Context, text stream.Sequence[string]) {
	for {
		chunk, err := text.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn().Err(err).Msg("text input ended abnormally")
			}
			if err := s.writeJSON(map[string]any{"event": "stop"}); err != nil {
				s.fail(fmt.Errorf("stop tts stream: %w", err))
			}
			return
		}
		if err := s.writeJSON(map[string]any{"event": "text", "text": chunk + " "}); err != nil {
			s.fail(fmt.Errorf("send text chunk: %w", err))
			return
		}
	}
}

type fishServerEvent struct {
	Event   string `json:"event"`
	Audio   string `json:"audio"`
	Message string `json:"message"`
}

func (s *fishStream) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("tts socket read: %w", err))
			return
		}

		var evt fishServerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "audio":
			chunk, err := base64.StdEncoding.DecodeString(evt.Audio)
			if err != nil || len(chunk) == 0 {
				continue
			}
			if !s.out.Send(s.ctx, chunk) {
				s.shutdown()
				return
			}
		case "finish":
			s.finish()
			return
		case "log":
			s.log.Debug().Str("message", evt.Message).Msg("tts upstream log")
		default:
			s.fail(fmt.Errorf("tts upstream %s (retryable=%v): %s",
				evt.Event, reliability.IsRetryableSynthesisEvent(evt.Event), evt.Message))
			return
		}
	}
}

func (s *fishStream) finish() {
	s.closeOnce.Do(func() {
		close(s.stopped)
		_ = s.conn.Close()
		s.out.Close()
	})
}

func (s *fishStream) fail(err error) {
	s.closeOnce.Do(func() {
		close(s.stopped)
		_ = s.conn.Close()
		s.out.Fail(err)
	})
}

func (s *fishStream) shutdown() {
	s.closeOnce.Do(func() {
		close(s.stopped)
		_ = s.conn.Close()
	})
}
