package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"social-campaign-engine/internal/models"
)

// Options tune one completion call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the raw completion text plus usage accounting.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is the AI completion capability. Selected via configuration: an
// empty or "mock"/"test" API key yields the mock provider.
type Provider interface {
	Complete(ctx context.Context, prompt string, opts Options) (Response, error)
}

// NewProvider picks the OpenAI-compatible provider when an API key is
// configured, the mock otherwise.
func NewProvider(apiKey, model, baseURL string) Provider {
	if apiKey == "" || apiKey == "mock" || apiKey == "test" {
		return &MockProvider{Delay: time.Second}
	}
	return NewOpenAIProvider(apiKey, model, baseURL)
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, opts Options) (Response, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	payload, err := json.Marshal(map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", strings.NewReader(string(payload)))
	if err != nil {
		return Response{}, fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 700 {
			msg = msg[:700]
		}
		return Response{}, &models.ExternalServiceError{Service: "ai completion", StatusCode: resp.StatusCode, Body: msg}
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Response{}, fmt.Errorf("decode completion response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return Response{}, fmt.Errorf("completion response without choices")
	}

	return Response{
		Content: raw.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		},
	}, nil
}

// MockProvider returns synthetic structured output after a fixed delay so
// the pipeline runs end to end without an API key.
type MockProvider struct {
	Delay time.Duration
}

func (p *MockProvider) Complete(ctx context.Context, prompt string, _ Options) (Response, error) {
	if p.Delay > 0 {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(p.Delay):
		}
	}

	content, err := json.Marshal(map[string]any{
		"summary": "This is a mock summary of the provided content. It demonstrates the analysis pipeline without requiring an API key.",
		"key_points": []string{
			"Mock key point 1: Main idea extracted from content",
			"Mock key point 2: Supporting detail or theme",
			"Mock key point 3: Concluding insight or takeaway",
		},
		"hooks": []string{
			"Mock hook 1: Compelling angle for audience engagement",
			"Mock hook 2: Interesting perspective or controversy",
			"Mock hook 3: Actionable insight or surprising fact",
		},
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		Content: string(content),
		Usage:   Usage{PromptTokens: 100, CompletionTokens: 150, TotalTokens: 250},
	}, nil
}
