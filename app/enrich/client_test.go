package enrich

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/bankwatch/app/cache"
	"github.com/lysyi3m/bankwatch/app/llm"
)

type fakeCompleter struct {
	mu        sync.Mutex
	calls     int
	responses []string
	errs      []error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "ok", nil
}

func (f *fakeCompleter) Model() string { return "fake" }

func newTestClient(completer llm.Completer, attempts int) (*Client, *[]time.Duration) {
	var delays []time.Duration
	c := NewClient(completer, cache.NewTTLCache[string](time.Hour, 100), NewBudget(10, 3, 15), DefaultRetryPolicy(attempts), time.Second)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestClassifyCachesResponses(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"Да"}}
	c, _ := newTestClient(completer, 3)
	ctx := context.Background()

	for _, prompt := range []string{"Относится ли  новость\n к банку?", "Относится ли новость к банку?"} {
		got, err := c.Classify(ctx, prompt)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got != "Да" {
			t.Errorf("Expected 'Да', got %q", got)
		}
	}

	if completer.calls != 1 {
		t.Errorf("Expected 1 backend call for whitespace variants, got %d", completer.calls)
	}
}

func TestClassifyRetriesRateLimits(t *testing.T) {
	rateLimited := &llm.StatusError{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}
	completer := &fakeCompleter{
		errs:      []error{rateLimited, rateLimited, nil},
		responses: []string{"", "", "Нет"},
	}
	c, delays := newTestClient(completer, 10)

	got, err := c.Classify(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != "Нет" {
		t.Errorf("Expected 'Нет', got %q", got)
	}
	if len(*delays) != 2 {
		t.Fatalf("Expected 2 backoff delays, got %d", len(*delays))
	}
	for i, d := range *delays {
		if d < 2*time.Second || d > 60*time.Second {
			t.Errorf("Delay %d out of rate-limit bounds: %v", i, d)
		}
	}
	if c.Budget().Limit() != 8 {
		t.Errorf("Expected budget to shrink to 8, got %d", c.Budget().Limit())
	}
}

func TestClassifyExhaustionIsFatal(t *testing.T) {
	unavailable := &llm.StatusError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")}
	completer := &fakeCompleter{errs: []error{unavailable, unavailable, unavailable}}
	c, delays := newTestClient(completer, 3)

	_, err := c.Classify(context.Background(), "prompt")
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("Expected ErrFatal, got: %v", err)
	}
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Expected last cause to be wrapped, got: %v", err)
	}
	if completer.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", completer.calls)
	}
	if len(*delays) != 2 {
		t.Errorf("Expected 2 delays between 3 attempts, got %d", len(*delays))
	}
}

func TestClassifyDoesNotRetryFatal(t *testing.T) {
	unauthorized := &llm.StatusError{StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")}
	completer := &fakeCompleter{errs: []error{unauthorized}}
	c, _ := newTestClient(completer, 10)

	_, err := c.Classify(context.Background(), "prompt")
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrFatal) {
		t.Fatalf("Expected ErrUnauthorized wrapping ErrFatal, got: %v", err)
	}
	if completer.calls != 1 {
		t.Errorf("Expected a single attempt, got %d", completer.calls)
	}
}

func TestClassifySkipsBackendAfterRejectedCredentials(t *testing.T) {
	unauthorized := &llm.StatusError{StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")}
	completer := &fakeCompleter{errs: []error{unauthorized}, responses: []string{"", "Да"}}
	c, _ := newTestClient(completer, 10)
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := c.Classify(ctx, "first"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got: %v", err)
	}
	for _, prompt := range []string{"second", "third"} {
		if _, err := c.Classify(ctx, prompt); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized for %q, got: %v", prompt, err)
		}
	}
	if completer.calls != 1 {
		t.Errorf("Expected the backend to be called once, got %d", completer.calls)
	}

	c.ResetPass()
	got, err := c.Classify(ctx, "second")
	if err != nil {
		t.Fatalf("Expected no error after reset, got: %v", err)
	}
	if got != "Да" || completer.calls != 2 {
		t.Errorf("Expected 'Да' from a second backend call, got %q after %d calls", got, completer.calls)
	}
}

func TestClassifyRejectionExpires(t *testing.T) {
	unauthorized := &llm.StatusError{StatusCode: http.StatusForbidden, Err: errors.New("forbidden")}
	completer := &fakeCompleter{errs: []error{unauthorized}}
	c, _ := newTestClient(completer, 10)
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Classify(ctx, "first")
	now = now.Add(DefaultRejectedHold)

	if _, err := c.Classify(ctx, "second"); err != nil {
		t.Fatalf("Expected the hold to lapse, got: %v", err)
	}
	if completer.calls != 2 {
		t.Errorf("Expected 2 backend calls, got %d", completer.calls)
	}
}

func TestClassifyErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"rate limit", &llm.StatusError{StatusCode: 429}, ErrRateLimited},
		{"server error", &llm.StatusError{StatusCode: 502}, ErrTransient},
		{"forbidden", &llm.StatusError{StatusCode: 403}, ErrUnauthorized},
		{"bad request", &llm.StatusError{StatusCode: 400}, ErrFatal},
		{"timeout", context.DeadlineExceeded, ErrTransient},
		{"empty", llm.ErrEmptyResponse, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); !errors.Is(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDefaultBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := DefaultBackoff(attempt, ErrRateLimited)
		if d > 60*time.Second {
			t.Errorf("Rate-limit delay for attempt %d exceeds 60s: %v", attempt, d)
		}

		d = DefaultBackoff(attempt, ErrTransient)
		if d > 30*time.Second {
			t.Errorf("Transient delay for attempt %d exceeds 30s: %v", attempt, d)
		}
		if d < time.Duration(min(attempt+1, 9))*3*time.Second+time.Second && d != 30*time.Second {
			t.Errorf("Transient delay for attempt %d too short: %v", attempt, d)
		}
	}
}
