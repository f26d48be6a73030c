package transcribe

import "context"

// Mock satisfies Transcriber for development and testing.
type Mock struct {
	TranscribeFunc func(ctx context.Context, audio []byte, filename string) (Result, error)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Transcribe(ctx context.Context, audio []byte, filename string) (Result, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, filename)
	}
	return Result{Text: "Mock transcript for " + filename, Confidence: "HIGH"}, nil
}

// NewMock returns a Mock with a canned successful response.
func NewMock() *Mock {
	return &Mock{}
}

var _ Transcriber = (*Mock)(nil)
