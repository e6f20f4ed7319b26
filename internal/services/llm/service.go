package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
)

// Service implements interfaces.LLMService over the provider factory.
// Completions use the configured default provider and model; embeddings
// use the Gemini embedding model.
type Service struct {
	factory *ProviderFactory
	usage   *UsageTracker
	logger  arbor.ILogger
	timeout time.Duration
}

// NewService creates an LLM service bound to the provider factory.
func NewService(factory *ProviderFactory, timeout time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		factory: factory,
		usage:   NewUsageTracker(),
		logger:  logger,
		timeout: timeout,
	}
}

// Complete generates a response for a single system+user prompt pair.
func (s *Service) Complete(ctx context.Context, system, prompt string) (string, error) {
	return s.generate(ctx, &ContentRequest{
		Messages:          []interfaces.Message{{Role: "user", Content: prompt}},
		SystemInstruction: system,
	}, "complete")
}

// Chat generates a completion over the full conversation history.
func (s *Service) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	return s.generate(ctx, &ContentRequest{Messages: messages}, "chat")
}

// CompleteJSON generates a response constrained to JSON. The optional
// schema is enforced natively on Gemini and via the system prompt on
// Claude; a wrapping markdown fence is stripped either way.
func (s *Service) CompleteJSON(ctx context.Context, system, prompt string, schema map[string]interface{}) (string, error) {
	text, err := s.generate(ctx, &ContentRequest{
		Messages:          []interfaces.Message{{Role: "user", Content: prompt}},
		SystemInstruction: system,
		OutputSchema:      schema,
		ResponseJSON:      true,
	}, "complete_json")
	if err != nil {
		return "", err
	}
	return StripJSONFences(text), nil
}

// generate runs a content request with the service timeout and records
// the outcome in the usage tracker.
func (s *Service) generate(ctx context.Context, request *ContentRequest, operation string) (string, error) {
	if len(request.Messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for %s", operation)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := s.factory.GenerateContent(timeoutCtx, request)
	duration := time.Since(startTime)
	s.usage.Record(operation, duration, err)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("operation", operation).
			Int("message_count", len(request.Messages)).
			Msg("Content generation failed")
		return "", err
	}

	s.logger.Debug().
		Str("operation", operation).
		Str("provider", string(resp.Provider)).
		Str("model", resp.Model).
		Int("response_length", len(resp.Text)).
		Dur("duration", duration).
		Msg("Content generation completed")

	return resp.Text, nil
}

// Embed generates an embedding vector for the given text.
func (s *Service) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in a single
// provider call, preserving input order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	vectors, err := s.factory.GenerateEmbeddings(timeoutCtx, texts)
	duration := time.Since(startTime)
	s.usage.Record("embed", duration, err)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("text_count", len(texts)).
			Msg("Embedding generation failed")
		return nil, err
	}

	s.logger.Debug().
		Int("text_count", len(texts)).
		Dur("duration", duration).
		Msg("Embedding generation completed")

	return vectors, nil
}

// ModelName returns the active generation model identifier.
func (s *Service) ModelName() string {
	return s.factory.GetDefaultModel(s.factory.DetectProvider(""))
}

// IsAvailable reports whether the active provider has a resolvable API key.
// No network call is made.
func (s *Service) IsAvailable(ctx context.Context) bool {
	keyName := "gemini_api_key"
	fallback := s.factory.geminiConfig.APIKey
	if s.factory.DetectProvider("") == ProviderClaude {
		keyName = "anthropic_api_key"
		fallback = s.factory.claudeConfig.APIKey
	}
	_, err := common.ResolveAPIKey(ctx, s.factory.kvStorage, keyName, fallback)
	return err == nil
}

// Usage returns cumulative call statistics for status reporting.
func (s *Service) Usage() UsageStats {
	return s.usage.Snapshot()
}

// Close releases provider resources.
func (s *Service) Close() error {
	s.logger.Info().Msg("Closing LLM service")
	return s.factory.Close()
}

// jsonFencePattern matches a markdown code fence wrapping an entire response
var jsonFencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripJSONFences removes a wrapping markdown code fence from a JSON
// response. Providers occasionally fence their output even when asked
// not to.
func StripJSONFences(text string) string {
	trimmed := strings.TrimSpace(text)
	matches := jsonFencePattern.FindStringSubmatch(trimmed)
	if len(matches) == 2 {
		return matches[1]
	}
	return trimmed
}
