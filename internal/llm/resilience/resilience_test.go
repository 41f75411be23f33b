package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"rana/internal/llm/core"
	mockprovider "rana/internal/llm/providers/mock"
)

func fastPolicy() core.RetryPolicy {
	return core.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryRecoversFromRetryableFailure(t *testing.T) {
	t.Parallel()

	mock := &mockprovider.Provider{Script: []mockprovider.Step{
		{Err: &core.HTTPError{Provider: "mock", StatusCode: 503}},
		{Err: &core.HTTPError{Provider: "mock", StatusCode: 429}},
		{Response: &core.Response{Content: "ok"}},
	}}

	resp, err := WithRetry(mock, fastPolicy()).Complete(context.Background(), &core.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("Content = %q, want ok", resp.Content)
	}
	if mock.Calls() != 3 {
		t.Fatalf("Calls() = %d, want 3", mock.Calls())
	}
}

func TestRetryDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	mock := &mockprovider.Provider{Script: []mockprovider.Step{
		{Err: &core.HTTPError{Provider: "mock", StatusCode: 401}},
		{Response: &core.Response{Content: "never reached"}},
	}}

	_, err := WithRetry(mock, fastPolicy()).Complete(context.Background(), &core.Request{Model: "m"})
	httpErr, ok := core.AsHTTPError(err)
	if !ok || httpErr.StatusCode != 401 {
		t.Fatalf("error = %v, want the original 401", err)
	}
	if mock.Calls() != 1 {
		t.Fatalf("Calls() = %d, want 1 (no retry)", mock.Calls())
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	mock := &mockprovider.Provider{Script: []mockprovider.Step{
		{Err: &core.HTTPError{Provider: "mock", StatusCode: 500}},
	}}

	_, err := WithRetry(mock, fastPolicy()).Complete(context.Background(), &core.Request{Model: "m"})
	if _, ok := core.AsHTTPError(err); !ok {
		t.Fatalf("error = %v, want transport error after exhaustion", err)
	}
	// initial attempt + MaxRetries
	if mock.Calls() != 3 {
		t.Fatalf("Calls() = %d, want 3", mock.Calls())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	mock := &mockprovider.Provider{Script: []mockprovider.Step{
		{Err: &core.HTTPError{Provider: "mock", StatusCode: 502}},
	}}
	breaker := WithBreaker(mock, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := breaker.Complete(context.Background(), &core.Request{Model: "m"}); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}

	_, err := breaker.Complete(context.Background(), &core.Request{Model: "m"})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if mock.Calls() != 2 {
		t.Fatalf("Calls() = %d, want 2 (open circuit fails fast)", mock.Calls())
	}
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	mock := &mockprovider.Provider{Script: []mockprovider.Step{
		{Response: &core.Response{Content: "fine"}},
	}}
	breaker := WithBreaker(mock, BreakerConfig{})

	resp, err := breaker.Complete(context.Background(), &core.Request{Model: "m"})
	if err != nil || resp.Content != "fine" {
		t.Fatalf("Complete() = (%v, %v)", resp, err)
	}
	if breaker.Name() != "mock" {
		t.Fatalf("Name() = %q, want mock", breaker.Name())
	}
}
