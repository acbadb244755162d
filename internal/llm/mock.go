package llm

import (
	"context"
	"io"
	"strings"

	"github.com/ruiping-ai/ruiping/internal/stream"
)

// MockClient replays canned fragments. Used in tests and as the fallback
// backend when no OpenRouter key is configured.
type MockClient struct {
	Fragments []string
	// Err, when set, terminates the stream after FailAfter fragments.
	Err       error
	FailAfter int
}

func NewMockClient(fragments ...string) *MockClient {
	if len(fragments) == 0 {
		fragments = []string{"這個東西嘛，", "看起來普普通通，", "只能給個NPC", "[NPC]", "，下一位。"}
	}
	return &MockClient{Fragments: fragments}
}

func (m *MockClient) Validate(prompt, _ string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

func (m *MockClient) StreamCompletion(_ context.Context, prompt, _ string) (stream.Sequence[string], error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	return &mockSequence{fragments: m.Fragments, err: m.Err, failAfter: m.FailAfter}, nil
}

type mockSequence struct {
	fragments []string
	pos       int
	err       error
	failAfter int
}

func (s *mockSequence) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.err != nil && s.pos >= s.failAfter {
		return "", s.err
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	out := s.fragments[s.pos]
	s.pos++
	return out, nil
}
