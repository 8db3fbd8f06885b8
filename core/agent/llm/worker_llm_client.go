package llm

import (
	"context"
	"errors"
	"net/http"

	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator serves the same prompts through the chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	hasKey bool
}

var _ out.TextGenerator = (*OpenAIGenerator)(nil)

// OpenAIConfig configures the OpenAI generator. BaseURL is for compatible gateways and tests.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		hasKey: cfg.APIKey != "",
	}
}

func (g *OpenAIGenerator) Available() bool { return g.hasKey }
func (g *OpenAIGenerator) Model() string   { return g.model }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.hasKey {
		return "", apperr.ClassifierUnavailable("OpenAI API key not set")
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: generationTemperature,
		TopP:        generationTopP,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", apperr.ClassifierHTTPError(apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", apperr.ClassifierHTTPError(reqErr.HTTPStatusCode, reqErr.Error())
		}
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperr.ClassifierParseError("API 回應中沒有內容", "", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
