package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"civicfund/internal/model"
)

type fakePromoter struct {
	caller model.Caller
	err    error
}

func (f *fakePromoter) PromoteFullyFunded(_ context.Context, system model.Caller) (int, error) {
	f.caller = system
	return 2, f.err
}

func TestGoalSweepRunsAsAdministrator(t *testing.T) {
	p := &fakePromoter{}
	job := NewGoalSweepJob(p, "system", time.Minute, zap.NewNop())

	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if p.caller.UserID != "system" || !p.caller.Admin {
		t.Fatalf("expected admin system caller, got %+v", p.caller)
	}

	p.err = errors.New("db down")
	if err := job.Execute(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}

type countingRefresher struct {
	calls chan struct{}
}

func (c *countingRefresher) Refresh(context.Context) error {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return nil
}

func TestManagerRunsRegisteredJobs(t *testing.T) {
	m, err := NewManager(zap.NewNop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	r := &countingRefresher{calls: make(chan struct{}, 1)}
	if err := m.Register(NewFeaturedWarmJob(r, 20*time.Millisecond)); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.Start()
	defer m.Stop()

	select {
	case <-r.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("featured warm job never ran")
	}
}
