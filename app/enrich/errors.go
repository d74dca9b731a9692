package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lysyi3m/bankwatch/app/llm"
)

var (
	ErrTransient    = errors.New("transient failure")
	ErrRateLimited  = errors.New("rate limited")
	ErrMalformed    = errors.New("malformed response")
	ErrFatal        = errors.New("fatal failure")
	ErrUnauthorized = fmt.Errorf("unauthorized: %w", ErrFatal)
)

// ParseError is returned when a model reply does not follow the requested format.
type ParseError struct {
	Kind     string
	Response string
}

func (e *ParseError) Error() string {
	response := e.Response
	if len([]rune(response)) > 100 {
		response = string([]rune(response)[:100]) + "..."
	}
	return fmt.Sprintf("failed to parse %s response: %q", e.Kind, response)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}

// classifyError maps a backend failure onto the enrichment error taxonomy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case statusErr.StatusCode == http.StatusUnauthorized, statusErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		default:
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
	}

	if errors.Is(err, llm.ErrEmptyResponse) {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	// Timeouts and network failures.
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
