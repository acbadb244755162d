package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/stream"
)

func TestAudioWriterSaveRaw(t *testing.T) {
	w, err := NewAudioWriter(t.TempDir(), "mp3", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAudioWriter() error = %v", err)
	}

	src := stream.FromSlice([]byte("abc"), []byte("def"))
	if err := w.Save(context.Background(), "case1", src); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := os.ReadFile(w.Path("case1"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("file content = %q, want %q", got, "abcdef")
	}
}

func TestAudioWriterSavePCMWrapsWAV(t *testing.T) {
	w, err := NewAudioWriter(t.TempDir(), "pcm", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAudioWriter() error = %v", err)
	}

	src := stream.FromSlice([]byte{1, 2}, []byte{3, 4})
	if err := w.Save(context.Background(), "case2", src); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := w.Path("case2")
	if ext := path[len(path)-4:]; ext != ".wav" {
		t.Fatalf("path = %q, want .wav extension", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(got) != 44+4 {
		t.Fatalf("wav length = %d, want %d", len(got), 48)
	}
	if string(got[:4]) != "RIFF" {
		t.Fatalf("missing RIFF header: %q", got[:4])
	}
}

func TestAudioWriterStreamError(t *testing.T) {
	w, err := NewAudioWriter(t.TempDir(), "mp3", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAudioWriter() error = %v", err)
	}

	boom := errors.New("upstream gone")
	if err := w.Save(context.Background(), "case3", stream.Fail[[]byte](boom)); !errors.Is(err, boom) {
		t.Fatalf("Save() error = %v, want wrapping %v", err, boom)
	}
}
