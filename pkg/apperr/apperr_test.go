package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("update: %w", Newf(CodeNotFound, "project %s not found", "p1"))

	if !errors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected wrapped error to match by code")
	}
	if errors.Is(err, New(CodeValidation, "")) {
		t.Fatal("expected mismatch for different code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeInvalidStateTransition, http.StatusConflict},
		{CodeBudgetExceeded, http.StatusUnprocessableEntity},
		{CodeConcurrencyConflict, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.code, tt.want, got)
		}
	}
}

func TestWithMetadataCopies(t *testing.T) {
	base := New(CodeBudgetExceeded, "over budget")
	withMax := base.WithMetadata("max_allowed", "5000")

	if base.Metadata != nil {
		t.Fatal("expected original metadata untouched")
	}
	if withMax.Metadata["max_allowed"] != "5000" {
		t.Fatalf("unexpected metadata: %v", withMax.Metadata)
	}
}

func TestUnwrapAndCodeOf(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeInternal, "load project", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if CodeOf(fmt.Errorf("ctx: %w", err)) != CodeInternal {
		t.Fatal("expected internal code")
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Fatal("expected plain errors to classify as internal")
	}
	if CodeOf(InvalidTransition("DRAFT", "FUNDED")) != CodeInvalidStateTransition {
		t.Fatal("expected invalid transition code")
	}
}
