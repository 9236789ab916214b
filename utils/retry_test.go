package utils

import (
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 5, Delay: time.Millisecond, Logger: NewLogger()}

	calls := 0
	err := r.Do("flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, Delay: time.Millisecond, Logger: NewLogger()}

	last := errors.New("page not loaded")
	calls := 0
	err := r.Do("load", func() error {
		calls++
		return last
	})

	if calls != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !errors.Is(err, last) {
		t.Errorf("error %v does not wrap the last failure", err)
	}
}
