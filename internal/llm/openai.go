package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient calls the OpenAI Responses API with a strict JSON schema output format.
type OpenAIClient struct {
	client          *openai.Client
	model           string
	maxOutputTokens int
}

// NewOpenAIClient creates a client. baseURL may be empty for the public endpoint.
// The SDK's automatic retries are disabled: one attempt per call.
func NewOpenAIClient(apiKey, model, baseURL string, maxOutputTokens int) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client, model: model, maxOutputTokens: maxOutputTokens}
}

// CompleteJSON sends the request and returns the model's output text.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, req Request) (string, error) {
	if c.model == "" {
		return "", errors.New("openai: model is empty")
	}
	params := responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if c.maxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(c.maxOutputTokens))
	}
	if req.Schema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	return resp.OutputText(), nil
}
