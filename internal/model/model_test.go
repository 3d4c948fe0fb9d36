package model

import (
	"math"
	"testing"
	"time"
)

func TestProjectTransitionTable(t *testing.T) {
	legal := map[[2]ProjectStatus]bool{
		{ProjectStatusDraft, ProjectStatusActive}:         true,
		{ProjectStatusDraft, ProjectStatusCancelled}:      true,
		{ProjectStatusActive, ProjectStatusFunded}:        true,
		{ProjectStatusActive, ProjectStatusCancelled}:     true,
		{ProjectStatusFunded, ProjectStatusInProgress}:    true,
		{ProjectStatusFunded, ProjectStatusCancelled}:     true,
		{ProjectStatusInProgress, ProjectStatusCompleted}: true,
		{ProjectStatusInProgress, ProjectStatusCancelled}: true,
	}

	for _, from := range AllProjectStatuses {
		for _, to := range AllProjectStatuses {
			want := legal[[2]ProjectStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestProjectTerminalStatesAcceptNothing(t *testing.T) {
	for _, terminal := range []ProjectStatus{ProjectStatusCompleted, ProjectStatusCancelled} {
		if !terminal.IsTerminal() {
			t.Fatalf("%s should be terminal", terminal)
		}
		for _, to := range append(AllProjectStatuses, "UNKNOWN") {
			if terminal.CanTransitionTo(to) {
				t.Fatalf("terminal %s accepted transition to %s", terminal, to)
			}
		}
	}
}

func TestProjectStatusValid(t *testing.T) {
	for _, s := range AllProjectStatuses {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if ProjectStatus("active").Valid() {
		t.Fatal("status values are case sensitive")
	}
}

func TestPledgeTransitions(t *testing.T) {
	tests := []struct {
		from, to PledgeStatus
		want     bool
	}{
		{PledgeStatusPending, PledgeStatusProcessing, true},
		{PledgeStatusPending, PledgeStatusCompleted, true},
		{PledgeStatusProcessing, PledgeStatusCompleted, true},
		{PledgeStatusConfirmed, PledgeStatusCompleted, true},
		{PledgeStatusCompleted, PledgeStatusRefunded, true},
		{PledgeStatusCompleted, PledgeStatusReleased, true},
		{PledgeStatusCompleted, PledgeStatusPending, false},
		{PledgeStatusPending, PledgeStatusRefunded, false},
		{PledgeStatusProcessing, PledgeStatusRefunded, false},
		{PledgeStatusProcessing, PledgeStatusPending, false},
		{PledgeStatusFailed, PledgeStatusCompleted, false},
		{PledgeStatusRefunded, PledgeStatusCompleted, false},
		{PledgeStatusCompleted, PledgeStatusCompleted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}

	for _, from := range AllPledgeStatuses {
		if from.CanTransitionTo(PledgeStatusRefunded) != (from == PledgeStatusCompleted) {
			t.Fatalf("REFUNDED must be reachable only from COMPLETED, got from %s", from)
		}
		if from.IsTerminal() {
			for _, to := range AllPledgeStatuses {
				if from.CanTransitionTo(to) {
					t.Fatalf("terminal %s accepted %s", from, to)
				}
			}
		}
	}
}

func TestPledgeApplySetsTimestamps(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Pledge{Status: PledgeStatusPending, CreatedAt: created}

	completedAt := created.Add(time.Hour)
	p.Apply(PledgeStatusCompleted, completedAt)
	if p.CompletedAt == nil || !p.CompletedAt.Equal(completedAt) || p.RefundedAt != nil {
		t.Fatalf("unexpected timestamps after completion: %+v", p)
	}

	refundedAt := completedAt.Add(time.Hour)
	p.Apply(PledgeStatusRefunded, refundedAt)
	if p.RefundedAt == nil || !p.RefundedAt.Equal(refundedAt) {
		t.Fatalf("expected refunded_at, got %+v", p.RefundedAt)
	}
	if !p.CompletedAt.Equal(completedAt) {
		t.Fatal("completed_at must survive a refund")
	}
}

func TestProjectQueryOffset(t *testing.T) {
	if (ProjectQuery{Page: 0, Limit: 20}).Offset() != 0 {
		t.Fatal("page 0 should map to offset 0")
	}
	if (ProjectQuery{Page: 3, Limit: 20}).Offset() != 40 {
		t.Fatal("page 3 should map to offset 40")
	}
	if got := (ProjectQuery{Page: 1 << 62, Limit: 100}).Offset(); got != math.MaxInt {
		t.Fatalf("overflowing offset should saturate, got %d", got)
	}
	if (ProjectQuery{Page: 5, Limit: 0}).Offset() != 0 {
		t.Fatal("zero limit should map to offset 0")
	}
}
