package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"rainbow-register/internal/config"
)

// AnthropicClient extracts fields through the Claude Messages API
type AnthropicClient struct {
	client         anthropic.Client
	model          anthropic.Model
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	logger         *zap.Logger
}

func NewAnthropicClient(cfg config.AIConfig, logger *zap.Logger) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIURL))
	}

	return &AnthropicClient{
		client:         anthropic.NewClient(opts...),
		model:          anthropic.Model(cfg.Model),
		timeout:        cfg.Timeout,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		logger:         logger,
	}
}

// Extract asks Claude for the missing fields and parses its JSON reply
func (c *AnthropicClient) Extract(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("rr.ai.model", string(c.model)),
		attribute.Int("rr.ai.missing_fields", len(req.Missing)),
	)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
	}

	text, attempts, err := callWithRetry(ctx, c.maxRetries, c.initialBackoff, c.isRetryable, func(ctx context.Context) (string, error) {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		span.SetAttributes(
			attribute.Int64("rr.ai.input_tokens", message.Usage.InputTokens),
			attribute.Int64("rr.ai.output_tokens", message.Usage.OutputTokens),
		)
		if len(message.Content) == 0 {
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}
		content := message.Content[0]
		if content.Type != "text" {
			return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
		}
		return content.Text, nil
	})
	span.SetAttributes(attribute.Int("rr.ai.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Claude extraction call failed", zap.Int("attempts", attempts), zap.Error(err))
		return nil, fmt.Errorf("claude request failed: %w", err)
	}

	result, err := ParseResponse(text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Claude reply not parsable", zap.String("reply", text), zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (c *AnthropicClient) isRetryable(err error) bool {
	if isTransient(err) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	return false
}
