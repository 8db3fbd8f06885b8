package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/resilience"

	"github.com/goccy/go-json"
)

// DefaultGeminiEndpoint is the v1 REST base of the Generative Language API.
const DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1"

// Generation parameters shared by every request.
const (
	generationTemperature = 0.2
	generationTopP        = 0.8
	generationTopK        = 40
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
	TopK        int     `json:"topK"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
}

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

// GeminiGenerator calls generateContent over REST.
type GeminiGenerator struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	cb       *resilience.Breaker
}

var _ out.TextGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a generator. An empty or placeholder key leaves it unavailable.
func NewGeminiGenerator(cfg GeminiConfig) *GeminiGenerator {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultGeminiEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	apiKey := cfg.APIKey
	if apiKey == "YOUR_GEMINI_API_KEY" {
		apiKey = ""
	}

	return &GeminiGenerator{
		apiKey:   apiKey,
		model:    cfg.Model,
		endpoint: endpoint,
		client:   client,
		cb:       resilience.NewBreaker(resilience.DefaultBreakerConfig("gemini-api")),
	}
}

func (g *GeminiGenerator) Available() bool { return g.apiKey != "" }
func (g *GeminiGenerator) Model() string   { return g.model }

// Generate sends prompt and returns the first candidate's text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.Available() {
		return "", apperr.ClassifierUnavailable("Gemini API 金鑰未設置")
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature: generationTemperature,
			TopP:        generationTopP,
			TopK:        generationTopK,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	return resilience.Execute(g.cb, func() (string, error) {
		text, err := g.post(ctx, payload)
		if err != nil && !countsAgainstBreaker(err) {
			return "", resilience.Ignore(err)
		}
		return text, err
	})
}

func (g *GeminiGenerator) post(ctx context.Context, payload []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint, g.model, url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	raw := string(body)

	if resp.StatusCode != http.StatusOK {
		logger.WithFields(map[string]any{
			"status": resp.StatusCode,
			"model":  g.model,
		}).Warn("Gemini API returned non-200")
		return "", apperr.ClassifierHTTPError(resp.StatusCode, raw)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", apperr.ClassifierParseError("無法解析 API 回應", raw, err)
	}
	if len(decoded.Candidates) == 0 || decoded.Candidates[0].Content == nil || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", apperr.ClassifierParseError("API 回應中沒有內容", raw, nil)
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// countsAgainstBreaker reports whether err is an upstream failure. Parse errors and
// 4xx answers other than 429 are the caller's problem and leave the circuit alone.
func countsAgainstBreaker(err error) bool {
	if !apperr.IsAppError(err) {
		return true
	}
	appErr := apperr.AsAppError(err)
	switch appErr.Code {
	case apperr.CodeClassifierParseError, apperr.CodeClassifierUnavailable:
		return false
	case apperr.CodeClassifierHTTPError:
		status, _ := appErr.Details["status"].(int)
		return status >= 500 || status == http.StatusTooManyRequests
	}
	return true
}
