package extract

import (
	"context"

	"github.com/mbreslin/voicesync/pkg/models"
)

// Mock satisfies Extractor for development and testing.
type Mock struct {
	ExtractFunc func(ctx context.Context, transcript string, mappings []*models.SchemaMapping) (Result, error)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Extract(ctx context.Context, transcript string, mappings []*models.SchemaMapping) (Result, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, transcript, mappings)
	}
	entity := EntityUnknown
	if len(mappings) > 0 {
		entity = mappings[0].EntityName
	}
	return Result{
		EntityType: entity,
		Confidence: "HIGH",
		Fields:     map[string]any{},
	}, nil
}

// NewMock returns a Mock that classifies every transcript as the first
// configured entity with no fields.
func NewMock() *Mock {
	return &Mock{}
}

var _ Extractor = (*Mock)(nil)
