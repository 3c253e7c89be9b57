// Package llm provides the completion service used for content routing and
// summary generation, backed by langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/threadsync/internal/config"
	"github.com/raphaelgruber/threadsync/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the completion service.
type Message struct {
	Role    string
	Content string
}

// Completer is the black-box completion function.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// Model wraps langchaingo LLM for chat completion.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewModel creates an LLM model based on configuration.
// collector may be nil.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		// LM Studio and other OpenAI-compatible servers ignore the token.
		token := cfg.OpenAIAPIKey
		if token == "" {
			token = "not-needed"
		}
		opts := []openai.Option{
			openai.WithToken(token),
			openai.WithModel(cfg.LLMModel),
		}
		if cfg.LLMBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load AWS config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return newModel(model, cfg.LLMModel, collector, logger), nil
}

func newModel(model llms.Model, name string, collector *metrics.Collector, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		llm:       model,
		modelName: name,
		metrics:   collector,
		logger:    logger,
	}
}

// Complete sends messages to the model and returns the first choice.
// Failures wrap ErrCompletionUnavailable, and ErrFatalAPI when retrying
// cannot help.
func (m *Model) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(chatMessageType(msg.Role), msg.Content))
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, content, llms.WithTemperature(temperature))
	duration := time.Since(start)

	if err != nil {
		m.logger.Warn("completion failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("%w: %w", ErrCompletionUnavailable, wrapFatalError(err))
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", ErrCompletionUnavailable)
	}

	choice := response.Choices[0]
	if m.metrics != nil {
		m.metrics.RecordLLMUsage(metrics.OpCompletion, duration,
			tokenCount(choice.GenerationInfo, "PromptTokens", "InputTokens"),
			tokenCount(choice.GenerationInfo, "CompletionTokens", "OutputTokens"))
	}
	m.logger.Debug("completion complete", "model", m.modelName, "duration_ms", duration.Milliseconds(), "output_len", len(choice.Content))

	return choice.Content, nil
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// tokenCount reads the first integer value found under keys.
// Providers report usage under different names.
func tokenCount(info map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
