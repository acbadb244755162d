package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/reliability"
	"github.com/ruiping-ai/ruiping/internal/stream"
)

type OpenRouterConfig struct {
	APIKey        string
	BaseURL       string
	AllowedModels []string
}

// OpenRouterClient streams chat completions from the OpenRouter API.
type OpenRouterClient struct {
	cfg     OpenRouterConfig
	allowed map[string]bool
	client  *http.Client
	log     zerolog.Logger
}

func NewOpenRouterClient(cfg OpenRouterConfig, log zerolog.Logger) *OpenRouterClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	allowed := make(map[string]bool, len(cfg.AllowedModels))
	for _, m := range cfg.AllowedModels {
		m = strings.TrimSpace(m)
		if m != "" {
			allowed[m] = true
		}
	}
	return &OpenRouterClient{
		cfg:     cfg,
		allowed: allowed,
		client:  &http.Client{Timeout: 120 * time.Second},
		log:     log.With().Str("component", "openrouter").Logger(),
	}
}

func (c *OpenRouterClient) Validate(prompt, model string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if !c.allowed[strings.TrimSpace(model)] {
		return fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
	return nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCompletion opens a streaming completion and returns a lazy sequence
// of text fragments. A tier marker split across network deltas is delivered
// as one fragment.
func (c *OpenRouterClient) StreamCompletion(ctx context.Context, prompt, model string) (stream.Sequence[string], error) {
	if err := c.Validate(prompt, model); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		return nil, fmt.Errorf("openrouter status %d (retryable=%v): %s",
			res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode), strings.TrimSpace(string(body)))
	}

	out := stream.NewPipe[string](32)
	go c.consume(ctx, res.Body, out)
	return out, nil
}

func (c *OpenRouterClient) consume(ctx context.Context, body io.ReadCloser, out *stream.Pipe[string]) {
	defer body.Close()

	assembler := &markerAssembler{}
	emit := func(fragments []string) bool {
		for _, f := range fragments {
			if f == "" {
				continue
			}
			if !out.Send(ctx, f) {
				return false
			}
		}
		return true
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Debug().Err(err).Msg("skipping unparseable stream line")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if !emit(assembler.Consume(chunk.Choices[0].Delta.Content)) {
			return
		}
		if chunk.Choices[0].FinishReason != "" {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		emit(assembler.Flush())
		out.Fail(fmt.Errorf("stream read: %w", err))
		return
	}
	emit(assembler.Flush())
	out.Close()
}
