package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/audio"
	"github.com/ruiping-ai/ruiping/internal/stream"
)

// AudioWriter persists synthesized audio to disk, one file per case named
// <id>.<ext>. Saves are best effort: callers log the returned error and move
// on, playback is never blocked on the file.
type AudioWriter struct {
	dir    string
	format string
	log    zerolog.Logger
}

func NewAudioWriter(dir, format string, log zerolog.Logger) (*AudioWriter, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join("storage", "audio")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	format = strings.TrimSpace(strings.ToLower(format))
	if format == "" {
		format = "mp3"
	}
	return &AudioWriter{dir: dir, format: format, log: log}, nil
}

// Path returns the on-disk location for a case id.
func (w *AudioWriter) Path(caseID string) string {
	ext := w.format
	if ext == "pcm" {
		// Raw pcm is wrapped in a WAV container on save.
		ext = "wav"
	}
	return filepath.Join(w.dir, caseID+"."+ext)
}

// Save drains the audio sequence to the case file. Container formats are
// written incrementally as chunks arrive; raw pcm is buffered and wrapped in
// a WAV header, since the header carries the final data size.
func (w *AudioWriter) Save(ctx context.Context, caseID string, src stream.Sequence[[]byte]) error {
	if w.format == "pcm" {
		return w.saveWAV(ctx, caseID, src)
	}
	return w.saveRaw(ctx, caseID, src)
}

func (w *AudioWriter) saveRaw(ctx context.Context, caseID string, src stream.Sequence[[]byte]) error {
	path := w.Path(caseID)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}

	written := 0
	for {
		chunk, err := src.Next(ctx)
		if err != nil {
			closeErr := f.Close()
			if errors.Is(err, io.EOF) {
				w.log.Debug().Str("case_id", caseID).Str("path", path).Int("bytes", written).Msg("audio saved")
				return closeErr
			}
			return fmt.Errorf("audio stream ended early: %w", err)
		}
		n, err := f.Write(chunk)
		written += n
		if err != nil {
			f.Close()
			return fmt.Errorf("write audio file: %w", err)
		}
	}
}

func (w *AudioWriter) saveWAV(ctx context.Context, caseID string, src stream.Sequence[[]byte]) error {
	var pcm bytes.Buffer
	for {
		chunk, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("audio stream ended early: %w", err)
		}
		pcm.Write(chunk)
	}

	path := w.Path(caseID)
	if err := audio.WriteWAVPCM16LEFile(path, pcm.Bytes(), audio.DefaultSampleRate); err != nil {
		return fmt.Errorf("write wav file: %w", err)
	}
	w.log.Debug().Str("case_id", caseID).Str("path", path).Int("bytes", pcm.Len()).Msg("audio saved")
	return nil
}
