package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mbreslin/voicesync/internal/config"
	"github.com/mbreslin/voicesync/pkg/models"
)

// ChatClient implements Extractor against an OpenAI-compatible
// chat-completions endpoint (Groq, OpenAI).
type ChatClient struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewChatClient(cfg config.ExtractConfig) *ChatClient {
	return &ChatClient{
		provider:    cfg.Provider,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ChatClient) Name() string { return c.provider }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) Extract(ctx context.Context, transcript string, mappings []*models.SchemaMapping) (Result, error) {
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": buildSystemPrompt(mappings)},
			{"role": "user", "content": buildUserPrompt(transcript)},
		},
		"temperature":     c.temperature,
		"response_format": map[string]string{"type": "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	u := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, fmt.Errorf("%w: status 429", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %d", ErrExtractionFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading response: %v", ErrExtractionFailed, err)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	content := cr.Choices[0].Message.Content
	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Some models wrap the JSON object in prose despite the response
		// format hint; fall back to the first balanced object.
		if inner := firstJSONObject(content); inner != "" {
			if err2 := json.Unmarshal([]byte(inner), &result); err2 == nil {
				return normalize(result), nil
			}
		}
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return normalize(result), nil
}

func normalize(r Result) Result {
	if r.EntityType == "" {
		r.EntityType = EntityUnknown
	}
	if r.Confidence == "" {
		r.Confidence = "LOW"
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	return r
}

func buildSystemPrompt(mappings []*models.SchemaMapping) string {
	var b strings.Builder
	b.WriteString(`You are an assistant for an agricultural data management system.
Your job is to extract structured data from voice transcriptions about farm animals and operations.

Available entity types and their fields:
`)
	for _, m := range mappings {
		fields := make([]string, 0, len(m.FieldMappings))
		for f := range m.FieldMappings {
			fields = append(fields, f)
		}
		keywords := "N/A"
		if len(m.DetectionKeywords) > 0 {
			keywords = strings.Join(m.DetectionKeywords, ", ")
		}
		fmt.Fprintf(&b, "\nEntity: %s\nFields: %s\nKeywords: %s\n",
			m.EntityName, strings.Join(fields, ", "), keywords)
	}
	b.WriteString(`
Rules:
- Only extract information that is explicitly mentioned
- Use null for missing fields
- Be precise with numbers, dates, and identifiers
- If the transcription doesn't match any entity type, return entity_type: "unknown"`)
	return b.String()
}

func buildUserPrompt(transcript string) string {
	return fmt.Sprintf(`Transcription:
%q

Extract the data and return ONLY a JSON object with this structure:
{
    "entity_type": "<entity name or unknown>",
    "confidence": "HIGH|MEDIUM|LOW",
    "extracted_data": { "field_name": "value" },
    "notes": "any additional context or uncertainties"
}`, transcript)
}

// firstJSONObject returns the first balanced top-level {...} in s, or "".
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var _ Extractor = (*ChatClient)(nil)
