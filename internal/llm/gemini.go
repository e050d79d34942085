package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API with a JSON response MIME type.
type GeminiClient struct {
	client          *genai.Client
	model           string
	maxOutputTokens int
}

// NewGeminiClient creates a Gemini client. baseURL may be empty for the public endpoint.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, maxOutputTokens int) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model, maxOutputTokens: maxOutputTokens}, nil
}

// CompleteJSON sends the request and returns the response text. The schema is
// carried in the instructions; Gemini is asked for application/json output.
func (c *GeminiClient) CompleteJSON(ctx context.Context, req Request) (string, error) {
	if c.model == "" {
		return "", errors.New("gemini: model is empty")
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Instructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	if c.maxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(c.maxOutputTokens)
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Input), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	return resp.Text(), nil
}
