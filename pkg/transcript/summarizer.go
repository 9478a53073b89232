package transcript

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/teslashibe/go-voiceloop/internal/httpc"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

const summaryPrompt = `Summarize the following voice conversation between a user and an assistant in at most five short sentences.
Keep names, decisions, open requests and facts the assistant should remember. Do not invent anything.

`

// Summarizer condenses turns into a short text.
type Summarizer interface {
	Summarize(ctx context.Context, turns []Turn) (string, error)
}

// GeminiSummarizer summarizes turns with a Gemini model.
type GeminiSummarizer struct {
	client *genai.Client
	model  string
}

// GeminiOption configures a GeminiSummarizer.
type GeminiOption func(*genai.ClientConfig)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(cfg *genai.ClientConfig) { cfg.HTTPClient = c }
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) GeminiOption {
	return func(cfg *genai.ClientConfig) { cfg.HTTPOptions.BaseURL = url }
}

// NewGeminiSummarizer creates a summarizer for the Gemini API.
func NewGeminiSummarizer(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*GeminiSummarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(20 * time.Second),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiSummarizer{client: client, model: model}, nil
}

// Summarize asks the model for a summary of turns.
func (g *GeminiSummarizer) Summarize(ctx context.Context, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}

	temperature := float32(0.2)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: summaryPrompt + FormatTurns(turns)}}},
	}, &genai.GenerateContentConfig{Temperature: &temperature})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// FormatTurns renders turns one per line as "role: content".
func FormatTurns(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, content)
	}
	return sb.String()
}

var _ Summarizer = (*GeminiSummarizer)(nil)
