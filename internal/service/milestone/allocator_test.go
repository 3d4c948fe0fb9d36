package milestone

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/internal/repository/memstore"
	"civicfund/internal/service/txretry"
	"civicfund/pkg/apperr"
)

func setup(t *testing.T, goal int64) (*memstore.Store, *Allocator) {
	t.Helper()
	store := memstore.New()
	now := time.Now().UTC()
	if err := store.CreateProject(context.Background(), &model.Project{
		ID:              "p1",
		Title:           "Library roof",
		FundingGoal:     goal,
		FundingDeadline: now.Add(24 * time.Hour),
		Status:          model.ProjectStatusActive,
		CreatorID:       "creator",
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	policy := txretry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	return store, NewAllocator(store, policy, zap.NewNop())
}

var creator = model.Caller{UserID: "creator"}

func TestBudgetExceededReportsRemaining(t *testing.T) {
	_, alloc := setup(t, 1000)
	ctx := context.Background()

	for _, amount := range []int64{400, 400} {
		if _, err := alloc.CreateMilestone(ctx, creator, "p1", CreateInput{Title: "Phase", FundingAmount: amount}); err != nil {
			t.Fatalf("create %d: %v", amount, err)
		}
	}

	_, err := alloc.CreateMilestone(ctx, creator, "p1", CreateInput{Title: "Phase 3", FundingAmount: 300})
	if apperr.CodeOf(err) != apperr.CodeBudgetExceeded {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	e, _ := apperr.As(err)
	if e.Metadata["max_allowed"] != "200" {
		t.Fatalf("expected max_allowed 200, got %q", e.Metadata["max_allowed"])
	}

	if _, err := alloc.CreateMilestone(ctx, creator, "p1", CreateInput{Title: "Phase 3", FundingAmount: 200}); err != nil {
		t.Fatalf("exact remainder should fit: %v", err)
	}
	if _, err := alloc.CreateMilestone(ctx, creator, "p1", CreateInput{Title: "Free", FundingAmount: 0}); err != nil {
		t.Fatalf("zero amount should fit a full budget: %v", err)
	}
}

func TestCreateMilestoneDoesNotChangeProject(t *testing.T) {
	store, alloc := setup(t, 1000)
	before, _ := store.GetProject(context.Background(), "p1")

	if _, err := alloc.CreateMilestone(context.Background(), creator, "p1", CreateInput{Title: "Phase", FundingAmount: 500}); err != nil {
		t.Fatalf("create: %v", err)
	}
	after, _ := store.GetProject(context.Background(), "p1")
	if *before != *after {
		t.Fatalf("project changed: before=%+v after=%+v", before, after)
	}
}

func TestCreateMilestoneOnlyCreator(t *testing.T) {
	store, alloc := setup(t, 1000)

	for _, caller := range []model.Caller{{UserID: "someone"}, {UserID: "root", Admin: true}, {}} {
		_, err := alloc.CreateMilestone(context.Background(), caller, "p1", CreateInput{Title: "Phase", FundingAmount: 10})
		if apperr.CodeOf(err) != apperr.CodePermissionDenied {
			t.Fatalf("caller %+v: expected permission denied, got %v", caller, err)
		}
	}
	if got, _ := store.ListMilestones(context.Background(), "p1"); len(got) != 0 {
		t.Fatalf("expected no milestones, got %d", len(got))
	}
	if len(store.Messages()) != 0 {
		t.Fatal("expected no outbox messages")
	}
}

func TestCreateMilestoneValidation(t *testing.T) {
	_, alloc := setup(t, 1000)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"empty title", CreateInput{FundingAmount: 1}},
		{"long title", CreateInput{Title: string(make([]rune, MaxTitleLength+1)), FundingAmount: 1}},
		{"long description", CreateInput{Title: "ok", Description: string(make([]rune, MaxDescriptionLength+1))}},
		{"negative amount", CreateInput{Title: "ok", FundingAmount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := alloc.CreateMilestone(context.Background(), creator, "p1", tt.in)
			if apperr.CodeOf(err) != apperr.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateMilestoneUnknownProject(t *testing.T) {
	_, alloc := setup(t, 1000)
	_, err := alloc.CreateMilestone(context.Background(), creator, "missing", CreateInput{Title: "Phase", FundingAmount: 1})
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := alloc.ListMilestones(context.Background(), "missing"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentAllocationsNeverExceedGoal(t *testing.T) {
	store, alloc := setup(t, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = alloc.CreateMilestone(context.Background(), creator, "p1", CreateInput{Title: "Slice", FundingAmount: 150})
		}()
	}
	wg.Wait()

	milestones, err := store.ListMilestones(context.Background(), "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var sum int64
	for _, m := range milestones {
		sum += m.FundingAmount
	}
	if sum > 1000 {
		t.Fatalf("allocated %d exceeds goal", sum)
	}
	if len(milestones) != 6 {
		t.Fatalf("expected 6 accepted milestones, got %d", len(milestones))
	}
}

func TestListMilestonesOrder(t *testing.T) {
	_, alloc := setup(t, 1000)
	ctx := context.Background()

	inputs := []CreateInput{
		{Title: "third", OrderIndex: 3},
		{Title: "first", OrderIndex: 1},
		{Title: "second-a", OrderIndex: 2},
		{Title: "second-b", OrderIndex: 2},
	}
	for i, in := range inputs {
		at := time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
		alloc.now = func() time.Time { return at }
		if _, err := alloc.CreateMilestone(ctx, creator, "p1", in); err != nil {
			t.Fatalf("create %s: %v", in.Title, err)
		}
	}

	got, err := alloc.ListMilestones(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"first", "second-a", "second-b", "third"}
	for i, m := range got {
		if m.Title != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], m.Title)
		}
		if m.Status != model.MilestoneStatusPending {
			t.Fatalf("expected pending status, got %s", m.Status)
		}
	}
}
