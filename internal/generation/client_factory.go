package generation

import (
	"fmt"
	"strings"

	"promptforge/internal/config"
	"promptforge/internal/logging"
)

// NewClientFromConfig builds the generation client named by the config.
// Only the gemini provider ships today; the factory keeps the call sites
// provider-agnostic.
func NewClientFromConfig(cfg *config.Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini", "google":
		logging.Boot("generation client: provider=gemini model=%s", cfg.LLM.Model)
		return NewGeminiClientWithConfig(GeminiConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.GetLLMTimeout(),
			RequestGap: cfg.GetRequestGap(),
			MaxRetries: 3,
		})
	default:
		return nil, fmt.Errorf("unsupported generation provider: %q", cfg.LLM.Provider)
	}
}
