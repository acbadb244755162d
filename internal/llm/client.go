package llm

import (
	"context"
	"errors"

	"github.com/ruiping-ai/ruiping/internal/stream"
)

var (
	// ErrEmptyPrompt rejects requests with nothing to roast.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrUnsupportedModel rejects models outside the configured allow list.
	ErrUnsupportedModel = errors.New("unsupported model")
)

// Client streams completions for a prompt. Validate runs the same checks
// StreamCompletion performs, so handlers can reject bad requests before a
// session is registered.
type Client interface {
	Validate(prompt, model string) error
	StreamCompletion(ctx context.Context, prompt, model string) (stream.Sequence[string], error)
}
