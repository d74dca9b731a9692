package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Completer sends a single prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// StatusError carries the HTTP status of a failed backend call.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm backend returned status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ErrEmptyResponse is returned when the backend replies without any text.
var ErrEmptyResponse = errors.New("empty response from llm backend")

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

func New(c Config) (Completer, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("llm api key is not set")
	}

	switch c.Provider {
	case "anthropic":
		return NewAnthropicCompleter(c.APIKey, c.Model, c.BaseURL), nil
	case "openai":
		return NewOpenAICompleter(c.APIKey, c.Model, c.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", c.Provider)
	}
}

// wrapError attaches the backend status code when the SDK reports one.
func wrapError(err error) error {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return &StatusError{StatusCode: anthropicErr.StatusCode, Err: err}
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return &StatusError{StatusCode: openaiErr.StatusCode, Err: err}
	}

	return err
}

func cleanResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
