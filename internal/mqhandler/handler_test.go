package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	mqcontracts "civicfund/contracts/mq"
	"civicfund/internal/model"
	"civicfund/internal/repository/memstore"
	"civicfund/internal/service/pledge"
	"civicfund/internal/service/txretry"
)

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *fakeDeduper) AcquireOnce(_ context.Context, handler, eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := handler + ":" + eventID
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *fakeDeduper) Release(_ context.Context, handler, eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, handler+":"+eventID)
}

type fakeCounter struct {
	counts map[string]int64
}

func (c *fakeCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

type dlqMessage struct {
	routingKey string
	reason     string
}

type fakeDLQ struct {
	messages []dlqMessage
	down     bool
}

func (f *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, _ []byte, originalError, _ string) error {
	if f.down {
		return errors.New("dlq exchange unavailable")
	}
	f.messages = append(f.messages, dlqMessage{routingKey: routingKey, reason: originalError})
	return nil
}

type fixture struct {
	store   *memstore.Store
	dlq     *fakeDLQ
	dedup   *fakeDeduper
	counter *fakeCounter
	created *PledgeCreatedHandler
	status  *PledgeStatusChangedHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	now := time.Now().UTC()
	if err := store.CreateProject(context.Background(), &model.Project{
		ID: "p1", Title: "Playground", FundingGoal: 1000, FundingDeadline: now.Add(time.Hour),
		Status: model.ProjectStatusActive, CreatorID: "c", CreatedAt: now, UpdatedAt: now,
	}, nil); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	log := zap.NewNop()
	ledger := pledge.NewLedger(store, txretry.Policy{Attempts: 1}, log)
	f := &fixture{
		store:   store,
		dlq:     &fakeDLQ{},
		dedup:   &fakeDeduper{seen: map[string]bool{}},
		counter: &fakeCounter{counts: map[string]int64{}},
	}
	guard := NewGuard(f.dedup, f.counter, f.dlq, 2, log)
	f.created = NewPledgeCreatedHandler(ledger, guard, log)
	f.status = NewPledgeStatusChangedHandler(ledger, guard, log)
	return f
}

func encode(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestPledgeCreatedRecordsOnce(t *testing.T) {
	f := newFixture(t)
	raw := encode(t, mqcontracts.PledgeCreatedPayload{
		EventID: "evt-1", PledgeID: "pl-1", ProjectID: "p1", BackerID: "b", Amount: 300,
	})

	for i := 0; i < 2; i++ {
		if err := f.created.Handle(context.Background(), raw); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	p, err := f.store.GetPledge(context.Background(), "pl-1")
	if err != nil || p.Status != model.PledgeStatusPending {
		t.Fatalf("expected pending pledge, got %+v %v", p, err)
	}
	if n := len(f.store.Messages()); n != 1 {
		t.Fatalf("expected one ledger event, got %d", n)
	}
}

func TestPledgeCreatedBadPayloadGoesToDLQ(t *testing.T) {
	f := newFixture(t)
	if err := f.created.Handle(context.Background(), json.RawMessage(`{"amount":"lots"`)); err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if len(f.dlq.messages) != 1 || f.dlq.messages[0].routingKey != mqcontracts.RoutingPledgeCreated {
		t.Fatalf("expected DLQ message, got %+v", f.dlq.messages)
	}
}

func TestPledgeCreatedUnknownProjectGoesToDLQ(t *testing.T) {
	f := newFixture(t)
	raw := encode(t, mqcontracts.PledgeCreatedPayload{EventID: "evt-2", PledgeID: "pl-2", ProjectID: "nope", BackerID: "b", Amount: 10})

	if err := f.created.Handle(context.Background(), raw); err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if len(f.dlq.messages) != 1 {
		t.Fatalf("expected DLQ message, got %+v", f.dlq.messages)
	}
}

func TestPledgeStatusChangedCompletesPledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.created.Handle(ctx, encode(t, mqcontracts.PledgeCreatedPayload{
		EventID: "evt-1", PledgeID: "pl-1", ProjectID: "p1", BackerID: "b", Amount: 300,
	})); err != nil {
		t.Fatalf("created: %v", err)
	}

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	raw := encode(t, mqcontracts.PledgeStatusChangedPayload{EventID: "evt-s1", PledgeID: "pl-1", Status: "completed", OccurredAt: at})
	if err := f.status.Handle(ctx, raw); err != nil {
		t.Fatalf("status: %v", err)
	}

	p, _ := f.store.GetPledge(ctx, "pl-1")
	if p.Status != model.PledgeStatusCompleted || p.CompletedAt == nil || !p.CompletedAt.Equal(at) {
		t.Fatalf("unexpected pledge: %+v", p)
	}
}

func TestPledgeStatusChangedRetriesUntilPledgeExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := encode(t, mqcontracts.PledgeStatusChangedPayload{EventID: "evt-early", PledgeID: "pl-9", Status: "COMPLETED"})

	for attempt := 1; attempt <= 2; attempt++ {
		if err := f.status.Handle(ctx, raw); err == nil {
			t.Fatalf("attempt %d: expected nack for missing pledge", attempt)
		}
	}
	if err := f.status.Handle(ctx, raw); err != nil {
		t.Fatalf("expected ack after retries are exhausted, got %v", err)
	}
	if len(f.dlq.messages) != 1 {
		t.Fatalf("expected one DLQ message, got %+v", f.dlq.messages)
	}
	if len(f.counter.counts) != 0 {
		t.Fatalf("expected retry counter reset, got %v", f.counter.counts)
	}
}

func TestPledgeStatusChangedIllegalMoveGoesToDLQ(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.created.Handle(ctx, encode(t, mqcontracts.PledgeCreatedPayload{
		EventID: "evt-1", PledgeID: "pl-1", ProjectID: "p1", BackerID: "b", Amount: 300,
	})); err != nil {
		t.Fatalf("created: %v", err)
	}

	raw := encode(t, mqcontracts.PledgeStatusChangedPayload{EventID: "evt-r", PledgeID: "pl-1", Status: "REFUNDED"})
	if err := f.status.Handle(ctx, raw); err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if len(f.dlq.messages) != 1 {
		t.Fatalf("expected DLQ message, got %+v", f.dlq.messages)
	}
	p, _ := f.store.GetPledge(ctx, "pl-1")
	if p.Status != model.PledgeStatusPending {
		t.Fatalf("expected pledge untouched, got %s", p.Status)
	}
}

type panickingLedger struct{}

func (panickingLedger) RecordPledge(context.Context, pledge.RecordInput) (*model.Pledge, error) {
	panic("ledger exploded")
}

func TestPanicInsideHandlerGoesToDLQ(t *testing.T) {
	f := newFixture(t)
	guard := NewGuard(f.dedup, f.counter, f.dlq, 2, zap.NewNop())
	h := NewPledgeCreatedHandler(panickingLedger{}, guard, zap.NewNop())
	raw := encode(t, mqcontracts.PledgeCreatedPayload{EventID: "evt-p", PledgeID: "pl-p", ProjectID: "p1", Amount: 5})

	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("expected ack after dead-lettering, got %v", err)
	}
	if len(f.dlq.messages) != 1 || !strings.Contains(f.dlq.messages[0].reason, "ledger exploded") {
		t.Fatalf("expected panic reason in DLQ, got %+v", f.dlq.messages)
	}
	if len(f.counter.counts) != 0 {
		t.Fatalf("panics should not be counted as retries, got %v", f.counter.counts)
	}
}

func TestPanicOutsideGuardIsReturnedAsError(t *testing.T) {
	h := NewPledgeCreatedHandler(panickingLedger{}, nil, zap.NewNop())
	raw := encode(t, mqcontracts.PledgeCreatedPayload{EventID: "evt-n", PledgeID: "pl-n", ProjectID: "p1", Amount: 5})

	err := h.Handle(context.Background(), raw)
	var panicErr *PanicError
	if !errors.As(err, &panicErr) || panicErr.Handler != handlerPledgeCreated {
		t.Fatalf("expected PanicError so the consumer nacks, got %v", err)
	}
}

func TestDLQOutageNacksAndReleasesDedup(t *testing.T) {
	f := newFixture(t)
	f.dlq.down = true
	ctx := context.Background()
	raw := encode(t, mqcontracts.PledgeCreatedPayload{EventID: "evt-x", PledgeID: "pl-x", ProjectID: "nope", Amount: 10})

	if err := f.created.Handle(ctx, raw); err == nil {
		t.Fatal("expected nack while the DLQ is down")
	}
	if f.dedup.seen[handlerPledgeCreated+":evt-x"] {
		t.Fatal("dedup lock should be released so redelivery is processed")
	}
	if err := f.status.Handle(ctx, json.RawMessage(`{`)); err == nil {
		t.Fatal("expected nack for undecodable payload while the DLQ is down")
	}
}
