package llm

import (
	"context"
	"fmt"

	"studymate/internal/config"
)

// NewFromConfig builds the primary and fallback clients for the configured
// provider. The fallback client (stronger model, same provider) is used
// only to retry structured-output calls; it may equal the primary when no
// fallback model is configured.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (primary, fallback Client, err error) {
	switch cfg.Provider {
	case "openai", "":
		oc := OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.CallTimeout,
		}
		if oc.BaseURL == "" {
			oc.BaseURL = DefaultOpenAIConfig(cfg.APIKey).BaseURL
		}
		primary = NewOpenAIClientWithConfig(oc)
		if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
			fc := oc
			fc.Model = cfg.FallbackModel
			fallback = NewOpenAIClientWithConfig(fc)
		} else {
			fallback = primary
		}
		return primary, fallback, nil

	case "gemini":
		primary, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
			fallback, err = NewGeminiClient(ctx, cfg.APIKey, cfg.FallbackModel)
			if err != nil {
				return nil, nil, err
			}
		} else {
			fallback = primary
		}
		return primary, fallback, nil

	default:
		return nil, nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
