// Package extraction talks to the LLM gateway that fills missing profile
// fields from the holder's free-text notes.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"rainbow-register/internal/config"
)

// ErrNotConfigured is returned when no API key is set
var ErrNotConfigured = errors.New("AI_API_KEY 未配置")

// ErrUnparsable is returned when the model reply is not the expected JSON object
var ErrUnparsable = errors.New("unparsable extraction response")

var tracer = otel.Tracer("rainbow-register/extraction")

// Field names a required field and how to describe it to the model
type Field struct {
	Key         string
	Description string
}

// Request is what the gateway needs to extract fields
type Request struct {
	Name    string
	Gender  string
	Age     int
	Corpus  string
	Missing []Field
}

// Result maps each requested field to an extracted value; nil means the
// text did not mention it.
type Result struct {
	Fields      map[string]*string `json:"fields"`
	Expectation map[string]*string `json:"expectation,omitempty"`
}

// Value returns the trimmed value for a scalar field, or "" if absent
func (r *Result) Value(key string) string {
	if r == nil {
		return ""
	}
	if v := r.Fields[key]; v != nil {
		return strings.TrimSpace(*v)
	}
	return ""
}

// Gateway is implemented by each provider client
type Gateway interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// New builds the gateway for the configured provider
func New(cfg config.AIConfig, logger *zap.Logger) (Gateway, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.APIType {
	case "claude":
		return NewAnthropicClient(cfg, logger), nil
	case "openai":
		return NewOpenAIClient(cfg, logger), nil
	}
	return nil, fmt.Errorf("unsupported AI_API_TYPE %q", cfg.APIType)
}

const (
	maxRetries     = 2
	initialBackoff = 1 * time.Second
	maxTokens      = 2000
)

// ParseResponse decodes a model reply. Markdown code fences around the JSON
// are tolerated; anything else that is not a JSON object is an error.
func ParseResponse(text string) (*Result, error) {
	cleaned := StripCodeFence(text)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrUnparsable)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	result := &Result{Fields: make(map[string]*string, len(raw))}
	for key, value := range raw {
		if key == "expectation" {
			exp, err := parseExpectation(value)
			if err != nil {
				return nil, err
			}
			result.Expectation = exp
			continue
		}
		result.Fields[key] = scalar(value)
	}
	return result, nil
}

func parseExpectation(value json.RawMessage) (map[string]*string, error) {
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "null" || trimmed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "{") {
		// a plain string description lands in the catch-all slot
		if s := scalar(value); s != nil {
			return map[string]*string{"other": s}, nil
		}
		return nil, fmt.Errorf("%w: expectation is %s", ErrUnparsable, trimmed)
	}

	var slots map[string]json.RawMessage
	if err := json.Unmarshal(value, &slots); err != nil {
		return nil, fmt.Errorf("%w: expectation: %v", ErrUnparsable, err)
	}
	out := make(map[string]*string, len(slots))
	for k, v := range slots {
		out[k] = scalar(v)
	}
	return out, nil
}

// scalar turns a JSON value into a string pointer; null and non-scalars give nil
func scalar(value json.RawMessage) *string {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err == nil {
		str := n.String()
		return &str
	}
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		str := "否"
		if b {
			str = "是"
		}
		return &str
	}
	return nil
}

// StripCodeFence removes a surrounding ``` fence (with optional language tag)
func StripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		} else {
			cleaned = strings.TrimPrefix(cleaned, "```")
		}
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}
