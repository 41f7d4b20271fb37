package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestDoAttemptsExactlyOnce(t *testing.T) {
	guard := NewGuard(Policy{BreakerEnabled: false})

	attempts := 0
	errTemp := errors.New("temporary")
	err := guard.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Temporary: true, RecordFailure: true}
	})
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoOpensCircuitAfterFailures(t *testing.T) {
	guard := NewGuard(Policy{
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	for i := 0; i < 2; i++ {
		err := guard.Do(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, nil)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := guard.Do(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}

	other := guard.Do(context.Background(), "other", func(context.Context) error { return nil }, nil)
	if other != nil {
		t.Fatalf("breakers must be tracked per operation, got %v", other)
	}
}

func TestDoIgnoresUnrecordedFailures(t *testing.T) {
	guard := NewGuard(Policy{
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.1,
	})

	errCaller := errors.New("bad request")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{RecordFailure: false}
	}
	for i := 0; i < 5; i++ {
		if err := guard.Do(context.Background(), "op", func(context.Context) error { return errCaller }, classifier); !errors.Is(err, errCaller) {
			t.Fatalf("expected caller error on iteration %d, got %v", i, err)
		}
	}
}

func TestDoRespectsRateLimit(t *testing.T) {
	guard := NewGuard(Policy{RateLimitRPS: 1, RateLimitBurst: 1})

	if err := guard.Do(context.Background(), "op", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("first call should use the burst token, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := guard.Do(ctx, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if err == nil || called {
		t.Fatalf("expected rate limit wait to fail before the call, err=%v called=%v", err, called)
	}
}
