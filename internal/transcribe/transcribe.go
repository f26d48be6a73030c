// Package transcribe converts recording audio to text. The pipeline only
// sees the Transcriber interface; never call a specific speech service
// directly.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbreslin/voicesync/internal/config"
)

var (
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrEmptyTranscript     = errors.New("transcription produced no text")
)

// Result is the output of a transcription call.
type Result struct {
	Text       string
	Confidence string // LOW, MEDIUM, HIGH
}

// Transcriber is the speech-to-text capability the pipeline depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Result, error)
	Name() string
}

// NewTranscriber constructs the configured transcriber. Called once at
// server startup.
func NewTranscriber(cfg config.TranscribeConfig) (Transcriber, error) {
	switch cfg.Provider {
	case "whisper":
		return NewWhisperClient(cfg), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown transcribe provider %q: must be one of whisper, mock", cfg.Provider)
	}
}
