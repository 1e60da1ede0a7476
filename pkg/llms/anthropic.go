package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipoteka-ai/policyrag/pkg/config"
	"github.com/ipoteka-ai/policyrag/pkg/httpclient"
)

const anthropicAPIVersion = "2023-06-01"

type AnthropicProvider struct {
	apiKey     string
	model      string
	host       string
	maxTokens  int
	httpClient *httpclient.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Error      *anthropicError    `json:"error,omitempty"`
}

func NewAnthropicProvider(cfg config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}

	return &AnthropicProvider{
		apiKey:    cfg.AnthropicAPIKey,
		model:     cfg.ClaudeModel,
		host:      "https://api.anthropic.com",
		maxTokens: cfg.MaxTokens,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders),
		),
	}, nil
}

func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	system, rest := splitSystem(messages)

	reqMessages := make([]anthropicMessage, 0, len(rest))
	for _, m := range rest {
		reqMessages = append(reqMessages, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		Messages:  reqMessages,
		MaxTokens: p.maxTokens,
		System:    system,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", parsed.Error.Message)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return text, nil
}

func (p *AnthropicProvider) ModelName() string {
	return p.model
}

func (p *AnthropicProvider) Close() error {
	return nil
}
