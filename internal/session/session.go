package session

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/llm"
	"github.com/ruiping-ai/ruiping/internal/observability"
	"github.com/ruiping-ai/ruiping/internal/stream"
	"github.com/ruiping-ai/ruiping/internal/tts"
)

var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSynthesisDisabled is returned by AudioStream when the session was
	// created without speech synthesis.
	ErrSynthesisDisabled = errors.New("speech synthesis disabled for this session")
)

// AudioSink receives the synthesized audio of a session for persistence.
type AudioSink interface {
	Save(ctx context.Context, caseID string, src stream.Sequence[[]byte]) error
}

// Config carries the roast parameters fixed at session creation.
type Config struct {
	Prompt     string
	LLMModel   string
	TTSEnabled bool
	VoiceID    string
	Speed      float64
}

// Deps are the session's collaborators. Synth and Sink may be nil when
// Config.TTSEnabled is false.
type Deps struct {
	LLM     llm.Client
	Synth   tts.Synthesizer
	Sink    AudioSink
	Metrics *observability.Metrics
	Log     zerolog.Logger
}

type state int

const (
	stateCreated state = iota
	stateStarted
	stateClosed
)

// Session owns the fan-out for one review case: a text broadcaster fed by
// the completion stream, and when synthesis is on, an audio broadcaster fed
// by the synthesized speech. All subscriptions are taken at construction so
// no consumer can miss the start of its stream.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg  Config
	deps Deps

	text  *stream.Broadcaster[string]
	audio *stream.Broadcaster[[]byte]

	textSub   *stream.Subscription[string]
	speechSub *stream.Subscription[string]
	audioSub  *stream.Subscription[[]byte]
	saveSub   *stream.Subscription[[]byte]

	mu     sync.Mutex
	st     state
	cancel context.CancelFunc
}

func New(cfg Config, deps Deps) *Session {
	id := uuid.New()
	s := &Session{
		ID:        hex.EncodeToString(id[:]),
		CreatedAt: time.Now().UTC(),
		cfg:       cfg,
		deps:      deps,
		text:      stream.NewBroadcaster[string](),
	}
	s.deps.Log = deps.Log.With().Str("case_id", s.ID).Logger()
	s.textSub = s.text.Subscribe()
	if cfg.TTSEnabled {
		s.speechSub = s.text.Subscribe()
		s.audio = stream.NewBroadcaster[[]byte]()
		s.audioSub = s.audio.Subscribe()
		s.saveSub = s.audio.Subscribe()
	}
	return s
}

// Start opens the completion stream and spawns the producer tasks. It may be
// called once; later calls return ErrAlreadyStarted. The passed context scopes
// the producers; Close cancels them.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.st != stateCreated {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.st = stateStarted
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	tokens, err := s.deps.LLM.StreamCompletion(ctx, s.cfg.Prompt, s.cfg.LLMModel)
	if err != nil {
		// Producers never ran; terminate every queue so no reader hangs.
		go s.text.Publish(ctx, stream.Fail[string](err))
		if s.audio != nil {
			go s.audio.Publish(ctx, stream.Fail[[]byte](err))
		}
		return err
	}

	go func() {
		if err := s.text.Publish(ctx, tokens); err != nil {
			s.countProviderError("openrouter")
			s.deps.Log.Warn().Err(err).Msg("completion stream ended with error")
		}
	}()

	if s.cfg.TTSEnabled {
		go s.runSynthesis(ctx)
		go s.runSave(ctx)
	}
	return nil
}

func (s *Session) runSynthesis(ctx context.Context) {
	chunks := stream.NewSpeechChunker(s.speechSub)
	audio, err := s.deps.Synth.StreamSynthesis(ctx, chunks, s.cfg.VoiceID, s.cfg.Speed)
	if err != nil {
		s.countProviderError("fishaudio")
		s.deps.Log.Warn().Err(err).Msg("synthesis unavailable")
		s.audio.Publish(ctx, stream.Fail[[]byte](err))
		return
	}
	if err := s.audio.Publish(ctx, audio); err != nil {
		s.countProviderError("fishaudio")
		s.deps.Log.Warn().Err(err).Msg("synthesis stream ended with error")
	}
}

func (s *Session) runSave(ctx context.Context) {
	if s.deps.Sink == nil {
		// Drain so the save queue does not grow unbounded.
		for {
			if _, err := s.saveSub.Next(ctx); err != nil {
				return
			}
		}
	}
	if err := s.deps.Sink.Save(ctx, s.ID, s.saveSub); err != nil {
		s.deps.Log.Warn().Err(err).Msg("audio save failed")
	}
}

// TextStream returns the public token sequence, tier markers included.
func (s *Session) TextStream() stream.Sequence[string] {
	return s.textSub
}

// AudioStream returns the public audio sequence.
func (s *Session) AudioStream() (stream.Sequence[[]byte], error) {
	if !s.cfg.TTSEnabled {
		return nil, ErrSynthesisDisabled
	}
	return s.audioSub, nil
}

// TTSEnabled reports whether the session synthesizes speech.
func (s *Session) TTSEnabled() bool { return s.cfg.TTSEnabled }

// Close cancels the producer tasks. Queues terminate through the producers'
// exit paths. Safe to call any number of times.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateClosed {
		return
	}
	s.st = stateClosed
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) countProviderError(provider string) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.ProviderErrors.WithLabelValues(provider, "stream").Inc()
}
