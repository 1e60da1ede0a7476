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

type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *httpclient.Client
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

func NewOllamaProvider(cfg config.LLMConfig) (*OllamaProvider, error) {
	if cfg.OllamaBaseURL == "" {
		return nil, fmt.Errorf("base URL is required for Ollama")
	}

	return &OllamaProvider{
		baseURL: cfg.OllamaBaseURL,
		model:   cfg.OllamaModel,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	reqMessages := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, ollamaChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.model,
		Messages: reqMessages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama API error: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

func (p *OllamaProvider) ModelName() string {
	return p.model
}

func (p *OllamaProvider) Close() error {
	return nil
}
