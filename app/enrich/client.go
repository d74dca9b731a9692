package enrich

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/bankwatch/app/cache"
	"github.com/lysyi3m/bankwatch/app/llm"
)

// Classifier sends a prompt to the enrichment model.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

var _ Classifier = (*Client)(nil)

// Client wraps a model backend with a response cache, an adaptive concurrency budget and retries.
type Client struct {
	completer llm.Completer
	cache     cache.Store[string]
	budget    *Budget
	retry     RetryPolicy
	timeout   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	mu           sync.Mutex
	rejectedAt   time.Time
	rejectedHold time.Duration
}

// DefaultRejectedHold bounds how long rejected credentials block calls when no pass resets them.
const DefaultRejectedHold = 15 * time.Minute

func NewClient(completer llm.Completer, store cache.Store[string], budget *Budget, retry RetryPolicy, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		completer: completer,
		cache:     store,
		budget:    budget,
		retry:     retry,
		timeout:   timeout,
		sleep:     sleepContext,
		now:       time.Now,

		rejectedHold: DefaultRejectedHold,
	}
}

// ResetPass lifts a credentials rejection recorded earlier, so the next call reaches the backend.
func (c *Client) ResetPass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectedAt = time.Time{}
}

func (c *Client) rejected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.rejectedAt.IsZero() && c.now().Sub(c.rejectedAt) < c.rejectedHold
}

func (c *Client) reject(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectedAt.IsZero() {
		slog.Error("Enrichment backend rejected credentials, skipping calls until next pass", "error", err)
	}
	c.rejectedAt = c.now()
}

func (c *Client) Budget() *Budget {
	return c.budget
}

// CacheKey is the md5 of the prompt with whitespace runs collapsed.
func CacheKey(prompt string) string {
	normalized := strings.Join(strings.Fields(prompt), " ")
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Classify returns the model reply for prompt. Cache hits bypass the budget.
// Failures are reported as ErrTransient, ErrRateLimited, ErrMalformed or ErrFatal. Once the backend
// answers 401 or 403, every call fails with ErrUnauthorized without reaching it until ResetPass.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	key := CacheKey(prompt)
	if response, ok := c.cache.Get(ctx, key); ok {
		return response, nil
	}

	if c.rejected() {
		return "", fmt.Errorf("%w: credentials rejected earlier in this pass", ErrUnauthorized)
	}

	if err := c.budget.Acquire(ctx); err != nil {
		return "", err
	}
	defer c.budget.Release()

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		response, err := c.call(ctx, prompt)
		if err == nil {
			c.cache.Set(ctx, key, response)
			c.budget.MaybeGrow()
			return response, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		if errors.Is(err, ErrRateLimited) {
			c.budget.RecordRateLimited()
		}
		if errors.Is(err, ErrUnauthorized) {
			c.reject(err)
		}
		if !c.retry.Retryable(err) {
			return "", err
		}
		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := c.retry.Backoff(attempt, err)
		slog.Warn("Enrichment call failed, retrying",
			"attempt", attempt+1,
			"max_attempts", c.retry.MaxAttempts,
			"delay", delay,
			"error", err)

		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	slog.Error("Enrichment call gave up", "attempts", c.retry.MaxAttempts, "error", lastErr)
	return "", fmt.Errorf("%w: gave up after %d attempts: %w", ErrFatal, c.retry.MaxAttempts, lastErr)
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.completer.Complete(callCtx, prompt)
	if err != nil {
		return "", classifyError(err)
	}
	return response, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
