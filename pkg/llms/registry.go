package llms

import (
	"fmt"

	"github.com/ipoteka-ai/policyrag/pkg/config"
)

// NewFromConfig constructs the provider named by cfg.Provider.
func NewFromConfig(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case config.ProviderOllama:
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
