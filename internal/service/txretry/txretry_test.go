package txretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"civicfund/internal/repository"
	"civicfund/pkg/apperr"
)

func fastPolicy(attempts uint) Policy {
	return Policy{Attempts: attempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestDoRetriesConflictsUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(3), "test", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, repository.ErrConflict
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("expected success, got %d %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoSurfacesConcurrencyConflictAfterExhaustion(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), "test", func() (struct{}, error) {
		calls++
		return struct{}{}, repository.ErrConflict
	})
	if apperr.CodeOf(err) != apperr.CodeConcurrencyConflict {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	want := apperr.New(apperr.CodeValidation, "bad input")
	_, err := Do(context.Background(), fastPolicy(5), "test", func() (struct{}, error) {
		calls++
		return struct{}{}, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
