package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"rainbow-register/internal/config"
)

// DefaultOpenAIBaseURL points at Zhipu's OpenAI-compatible endpoint
const DefaultOpenAIBaseURL = "https://open.bigmodel.cn/api/paas/v4/"

// OpenAIClient extracts fields through any OpenAI-compatible chat endpoint
// (GLM, DeepSeek, Qwen and friends).
type OpenAIClient struct {
	client         openai.Client
	model          string
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	logger         *zap.Logger
}

func NewOpenAIClient(cfg config.AIConfig, logger *zap.Logger) *OpenAIClient {
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	return &OpenAIClient{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
		model:          cfg.Model,
		timeout:        cfg.Timeout,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		logger:         logger,
	}
}

// Extract asks the chat model for the missing fields and parses its JSON reply
func (c *OpenAIClient) Extract(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "openai.chat.completions.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("rr.ai.model", c.model),
		attribute.Int("rr.ai.missing_fields", len(req.Missing)),
	)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(req)),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(0.1),
	}

	text, attempts, err := callWithRetry(ctx, c.maxRetries, c.initialBackoff, c.isRetryable, func(ctx context.Context) (string, error) {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		span.SetAttributes(
			attribute.Int64("rr.ai.input_tokens", completion.Usage.PromptTokens),
			attribute.Int64("rr.ai.output_tokens", completion.Usage.CompletionTokens),
		)
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("unexpected response format: no choices")
		}
		return completion.Choices[0].Message.Content, nil
	})
	span.SetAttributes(attribute.Int("rr.ai.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Chat extraction call failed", zap.Int("attempts", attempts), zap.Error(err))
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	result, err := ParseResponse(text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Chat reply not parsable", zap.String("reply", text), zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (c *OpenAIClient) isRetryable(err error) bool {
	if isTransient(err) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	return false
}
