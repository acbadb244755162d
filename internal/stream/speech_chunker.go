package stream

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Tier markers are meant for the tier board on screen, not for the voice.
// They are stripped before text reaches speech synthesis.
var tierMarkerPattern = regexp.MustCompile(`\[夯\]|\[頂級\]|\[人上人\]|\[NPC\]|\[拉完了\]`)

// speechMinChunkRunes is the minimum chunk size handed to synthesis. Tiny
// token-sized fragments make the voice stutter and waste synthesis calls.
const speechMinChunkRunes = 5

// SpeechChunker adapts a raw token subscription into synthesis-sized chunks:
// tier markers are stripped, whitespace-only fragments dropped, and short
// fragments coalesced until at least speechMinChunkRunes runes accumulate.
// The remainder is flushed when the upstream ends. Single-pass, like every
// Sequence.
type SpeechChunker struct {
	src  Sequence[string]
	buf  strings.Builder
	done bool
}

func NewSpeechChunker(src Sequence[string]) *SpeechChunker {
	return &SpeechChunker{src: src}
}

func (c *SpeechChunker) Next(ctx context.Context) (string, error) {
	if c.done {
		return "", io.EOF
	}
	for {
		fragment, err := c.src.Next(ctx)
		if err != nil {
			c.done = true
			if errors.Is(err, io.EOF) && c.buf.Len() > 0 {
				out := c.buf.String()
				c.buf.Reset()
				return out, nil
			}
			return "", err
		}

		fragment = tierMarkerPattern.ReplaceAllString(fragment, "")
		if strings.TrimSpace(fragment) == "" {
			continue
		}

		c.buf.WriteString(fragment)
		if utf8.RuneCountInString(c.buf.String()) < speechMinChunkRunes {
			continue
		}
		out := c.buf.String()
		c.buf.Reset()
		return out, nil
	}
}
