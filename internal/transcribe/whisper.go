package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/mbreslin/voicesync/internal/config"
)

// WhisperClient implements Transcriber against an OpenAI-compatible
// audio transcription endpoint.
type WhisperClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewWhisperClient(cfg config.TranscribeConfig) *WhisperClient {
	return &WhisperClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *WhisperClient) Name() string { return "whisper" }

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Result{}, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Result{}, fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return Result{}, fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return Result{}, fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("building multipart body: %w", err)
	}

	u := c.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %d", ErrTranscriptionFailed, resp.StatusCode)
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return Result{}, fmt.Errorf("%w: decoding response: %v", ErrTranscriptionFailed, err)
	}

	text := strings.TrimSpace(wr.Text)
	if text == "" {
		return Result{}, ErrEmptyTranscript
	}

	return Result{Text: text, Confidence: confidenceFromSegments(wr)}, nil
}

// confidenceFromSegments collapses Whisper's per-segment log probabilities
// into the coarse level the rest of the system works with.
func confidenceFromSegments(wr whisperResponse) string {
	if len(wr.Segments) == 0 {
		return "MEDIUM"
	}
	var sum float64
	for _, seg := range wr.Segments {
		sum += seg.AvgLogprob
	}
	avg := sum / float64(len(wr.Segments))
	switch {
	case avg > -0.3:
		return "HIGH"
	case avg > -0.8:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

var _ Transcriber = (*WhisperClient)(nil)
