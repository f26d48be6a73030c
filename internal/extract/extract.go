// Package extract pulls structured entity data out of a transcript using
// an LLM. The pipeline only sees the Extractor interface.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbreslin/voicesync/internal/config"
	"github.com/mbreslin/voicesync/pkg/models"
)

var (
	ErrExtractionFailed = errors.New("extraction failed")
	ErrRateLimited      = errors.New("extraction rate limited")
	ErrInvalidResponse  = errors.New("extractor returned invalid response")
)

// EntityUnknown is the sentinel entity type an extractor returns when the
// transcript doesn't match any configured entity.
const EntityUnknown = "unknown"

// Result is the output of an extraction call.
type Result struct {
	EntityType string         `json:"entity_type"`
	Confidence string         `json:"confidence"` // HIGH, MEDIUM, LOW
	Fields     map[string]any `json:"extracted_data"`
	Notes      string         `json:"notes,omitempty"`
}

// Extractor is the structured-data extraction capability the pipeline
// depends on. Implementations classify the transcript against the given
// tenant mappings and extract the matching fields.
type Extractor interface {
	Extract(ctx context.Context, transcript string, mappings []*models.SchemaMapping) (Result, error)
	Name() string
}

// NewExtractor constructs the configured extractor. Called once at server
// startup. The groq and openai providers share the chat-completions wire
// format and differ only in endpoint and model.
func NewExtractor(cfg config.ExtractConfig) (Extractor, error) {
	switch cfg.Provider {
	case "groq", "openai":
		return NewChatClient(cfg), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown extract provider %q: must be one of groq, openai, mock", cfg.Provider)
	}
}
