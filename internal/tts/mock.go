package tts

import (
	"context"
	"errors"
	"io"

	"github.com/ruiping-ai/ruiping/internal/stream"
)

// MockSynthesizer emits one deterministic audio chunk per text chunk. Used in
// tests and as the fallback backend when no Fish Audio key is configured.
type MockSynthesizer struct {
	// Err, when set, terminates the audio stream after the first chunk.
	Err error
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

func (m *MockSynthesizer) StreamSynthesis(ctx context.Context, text stream.Sequence[string], _ string, _ float64) (stream.Sequence[[]byte], error) {
	out := stream.NewPipe[[]byte](16)
	go func() {
		sent := 0
		for {
			chunk, err := text.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					out.Close()
				} else {
					out.Fail(err)
				}
				return
			}
			if !out.Send(ctx, []byte("audio:"+chunk)) {
				return
			}
			sent++
			if m.Err != nil && sent >= 1 {
				out.Fail(m.Err)
				return
			}
		}
	}()
	return out, nil
}
