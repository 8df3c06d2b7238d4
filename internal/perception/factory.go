package perception

import (
	"fmt"

	"vigil/internal/config"
	"vigil/internal/logging"
)

// NewClient builds the LLMClient selected by cfg.LLM.Provider.
func NewClient(cfg *config.Config) (LLMClient, error) {
	provider := cfg.LLM.Provider
	if provider == "" {
		provider = "lmstudio"
	}
	logging.API("creating LLM client: provider=%s model=%s", provider, cfg.LLM.Model)

	switch provider {
	case "lmstudio":
		return NewLMStudioClient(LMStudioConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			APIKey:  cfg.LLM.APIKey,
			Timeout: cfg.GetLLMTimeout(),
		}), nil

	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.GetLLMTimeout(),
		}), nil

	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.GetLLMTimeout(),
		})

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", provider)
	}
}
