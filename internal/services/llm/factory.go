package llm

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
)

// NewLLMService creates an LLM service from application configuration.
// The default provider comes from llm.default_provider; model strings
// with an explicit provider prefix can still reach the other provider
// through the factory.
func NewLLMService(cfg *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.LLMService, error) {
	factory := NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, &cfg.Embeddings, kvStorage, logger)

	provider := factory.DetectProvider("")
	timeoutStr := cfg.Gemini.Timeout
	if provider == ProviderClaude {
		timeoutStr = cfg.Claude.Timeout
	}
	if timeoutStr == "" {
		timeoutStr = "2m"
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", timeoutStr, err)
	}

	service := NewService(factory, timeout, logger)

	logger.Info().
		Str("provider", string(provider)).
		Str("model", service.ModelName()).
		Str("embed_model", cfg.Embeddings.Model).
		Int("embed_dimension", cfg.Embeddings.Dimension).
		Dur("timeout", timeout).
		Msg("LLM service initialized")

	return service, nil
}
