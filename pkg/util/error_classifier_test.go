package util

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"civicfund/pkg/apperr"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"conflict", apperr.New(apperr.CodeConcurrencyConflict, "busy"), true, "concurrency_conflict"},
		{"invalid transition", apperr.InvalidTransition("COMPLETED", "PENDING"), false, "invalid_state_transition"},
		{"not found", apperr.New(apperr.CodeNotFound, "pledge"), false, "not_found"},
		{"internal wrapping timeout", apperr.Wrap(apperr.CodeInternal, "db", context.DeadlineExceeded), true, "timeout"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_transient_error"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"fk", &pgconn.PgError{Code: "23503"}, false, "constraint_violation"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", fmt.Errorf("something odd"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			if retryable != tt.retryable || errType != tt.errType {
				t.Fatalf("expected (%v, %q), got (%v, %q)", tt.retryable, tt.errType, retryable, errType)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if ShouldRetry(1, 3, false) {
		t.Fatal("non-retryable errors must not retry")
	}
	if !ShouldRetry(3, 3, true) {
		t.Fatal("expected retry at the limit")
	}
	if ShouldRetry(4, 3, true) {
		t.Fatal("expected no retry past the limit")
	}
}
