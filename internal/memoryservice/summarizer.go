package memoryservice

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// GenaiSummarizer is the concrete Summarizer backed by the same Gemini
// client family as internal/embedclient (spec §1's "abstract summarize(prompt)
// -> text" provider). Grounded on internal/llm/google/client.go's
// Models.GenerateContent call shape.
type GenaiSummarizer struct {
	client *genai.Client
	model  string
}

// NewGenaiSummarizer constructs a GenaiSummarizer. apiKey may be empty, in
// which case Summarize always returns an error and callers fall back to
// concatenation (spec §4.5.7 step 2).
func NewGenaiSummarizer(ctx context.Context, apiKey, model string) (*GenaiSummarizer, error) {
	if apiKey == "" {
		return &GenaiSummarizer{model: model}, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	return &GenaiSummarizer{client: c, model: model}, nil
}

func (g *GenaiSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", errNoSummarizerConfigured
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", err
	}
	text, err := textFromResponse(resp)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptySummary
	}
	return text, nil
}

// textFromResponse extracts concatenated text parts from the first
// candidate, grounded on internal/llm/google/client.go's messageFromResponse.
func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errEmptySummary
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", errEmptySummary
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

var (
	errNoSummarizerConfigured = &ServiceError{Kind: KindProviderError, Message: "no summarization provider configured"}
	errEmptySummary           = &ServiceError{Kind: KindProviderError, Message: "summarization provider returned empty text"}
)
