package tts

import (
	"context"

	"github.com/ruiping-ai/ruiping/internal/stream"
)

// Synthesizer turns a lazy sequence of text chunks into a lazy sequence of
// encoded audio chunks. The returned sequence ends with io.EOF on success or
// the upstream error otherwise; either way it always ends.
type Synthesizer interface {
	StreamSynthesis(ctx context.Context, text stream.Sequence[string], voiceID string, speed float64) (stream.Sequence[[]byte], error)
}
