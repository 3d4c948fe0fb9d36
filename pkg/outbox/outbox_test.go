package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"civicfund/pkg/trace"
)

type fakeStore struct {
	events     map[int64]*Event
	sent       []int64
	failed     map[int64]int
	pendingErr error
	now        time.Time
	leases     []time.Duration
}

func newFakeStore(events ...*Event) *fakeStore {
	s := &fakeStore{events: map[int64]*Event{}, failed: map[int64]int{}, now: time.Unix(1_700_000_000, 0)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) ClaimPendingEvents(_ context.Context, limit int, lease time.Duration) ([]*Event, error) {
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	s.leases = append(s.leases, lease)
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		e, ok := s.events[id]
		if !ok || e.Status != StatusPending {
			continue
		}
		if e.NextRetryAt != nil && e.NextRetryAt.After(s.now) {
			continue
		}
		until := s.now.Add(lease)
		e.NextRetryAt = &until
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	return e, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	s.events[id].Status = StatusSent
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	s.failed[id] = maxRetries
	e := s.events[id]
	e.RetryCount++
	if e.RetryCount >= maxRetries {
		e.Status = StatusFailed
	}
	return nil
}

type fakePublisher struct {
	keys    []string
	traces  []string
	failKey string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	if routingKey == p.failKey {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, routingKey)
	p.traces = append(p.traces, trace.FromContext(ctx))
	return nil
}

func event(id int64, key, status string, payload string) *Event {
	return &Event{
		ID:          id,
		AggregateID: fmt.Sprintf("agg-%d", id),
		RoutingKey:  key,
		Payload:     json.RawMessage(payload),
		Status:      status,
	}
}

func TestDispatcherPublishesPendingEvents(t *testing.T) {
	store := newFakeStore(
		event(1, "project.created", StatusPending, `{"project_id":"p1","trace_id":"t-1"}`),
		event(2, "milestone.created", StatusPending, `{"milestone_id":"m1"}`),
		event(3, "project.status_changed", StatusSent, `{}`),
	)
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop()).WithBatchSize(10)

	d.processPendingEvents(context.Background())

	if len(pub.keys) != 2 || pub.keys[0] != "project.created" || pub.keys[1] != "milestone.created" {
		t.Fatalf("unexpected publish order %v", pub.keys)
	}
	if pub.traces[0] != "t-1" {
		t.Fatalf("expected trace id carried from payload, got %q", pub.traces[0])
	}
	if len(store.sent) != 2 {
		t.Fatalf("expected two events marked sent, got %v", store.sent)
	}
}

// 发布器在发布时触发另一个实例的轮询，模拟两个副本同时处理同一批事件
type reentrantPublisher struct {
	fakePublisher
	other func()
}

func (p *reentrantPublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if p.other != nil {
		other := p.other
		p.other = nil
		other()
	}
	return p.fakePublisher.PublishWithContext(ctx, routingKey, payload)
}

func TestConcurrentDispatchersPublishEachEventOnce(t *testing.T) {
	store := newFakeStore(
		event(1, "project.created", StatusPending, `{}`),
		event(2, "milestone.created", StatusPending, `{}`),
	)
	pub := &reentrantPublisher{}
	first := NewDispatcher(store, pub, zap.NewNop()).WithLease(time.Minute)
	second := NewDispatcher(store, pub, zap.NewNop()).WithLease(time.Minute)
	pub.other = func() { second.processPendingEvents(context.Background()) }

	first.processPendingEvents(context.Background())

	if len(pub.keys) != 2 {
		t.Fatalf("expected each event published once, got %v", pub.keys)
	}
	if len(store.sent) != 2 {
		t.Fatalf("expected two events marked sent, got %v", store.sent)
	}
	if len(store.leases) != 2 || store.leases[0] != time.Minute {
		t.Fatalf("expected both dispatchers to claim with a one minute lease, got %v", store.leases)
	}
}

func TestExpiredClaimIsPickedUpAgain(t *testing.T) {
	store := newFakeStore(event(1, "project.created", StatusPending, `{}`))

	claimed, err := store.ClaimPendingEvents(context.Background(), 10, 30*time.Second)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("first claim: %v %v", claimed, err)
	}
	// 认领后实例崩溃，事件既未 sent 也未 failed
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop()).WithLease(30 * time.Second)
	d.processPendingEvents(context.Background())
	if len(pub.keys) != 0 {
		t.Fatalf("event under lease must not be republished, got %v", pub.keys)
	}

	store.now = store.now.Add(31 * time.Second)
	d.processPendingEvents(context.Background())
	if len(pub.keys) != 1 || store.events[1].Status != StatusSent {
		t.Fatalf("expected event republished after lease expiry, got %v status=%s", pub.keys, store.events[1].Status)
	}
}

func TestDispatcherMarksFailuresWithConfiguredLimit(t *testing.T) {
	store := newFakeStore(
		event(1, "project.created", StatusPending, `{}`),
		event(2, "ledger.pledge_updated", StatusPending, `not json`),
	)
	pub := &fakePublisher{failKey: "project.created"}
	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(7)

	d.processPendingEvents(context.Background())

	if store.failed[1] != 7 || store.failed[2] != 7 {
		t.Fatalf("expected both events marked failed with limit 7, got %v", store.failed)
	}
	if len(store.sent) != 0 {
		t.Fatalf("nothing should be marked sent, got %v", store.sent)
	}
}

func TestDispatcherSurvivesStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.pendingErr = errors.New("db down")
	pub := &fakePublisher{}

	NewDispatcher(store, pub, zap.NewNop()).processPendingEvents(context.Background())

	if len(pub.keys) != 0 {
		t.Fatalf("expected no publishes, got %v", pub.keys)
	}
}

func TestReplayEvent(t *testing.T) {
	store := newFakeStore(
		event(1, "project.created", StatusFailed, `{}`),
		event(2, "project.created", StatusSent, `{}`),
	)
	svc := NewReplayService(store, &fakePublisher{}, zap.NewNop())

	if err := svc.ReplayEvent(context.Background(), 1); err != nil {
		t.Fatalf("replay failed event: %v", err)
	}
	if store.events[1].Status != StatusSent {
		t.Fatalf("expected event 1 sent, got %s", store.events[1].Status)
	}
	if err := svc.ReplayEvent(context.Background(), 2); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("expected ErrAlreadySent, got %v", err)
	}
	if err := svc.ReplayEvent(context.Background(), 99); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestReplayFailedEventsReportsPerEvent(t *testing.T) {
	store := newFakeStore(
		event(1, "project.created", StatusFailed, `{}`),
		event(2, "milestone.created", StatusFailed, `{}`),
		event(3, "project.created", StatusPending, `{}`),
	)
	pub := &fakePublisher{failKey: "milestone.created"}
	svc := NewReplayService(store, pub, zap.NewNop())

	report, err := svc.ReplayFailedEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Scanned != 2 || report.Replayed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.FailedIDs) != 1 || report.FailedIDs[0] != 2 {
		t.Fatalf("expected event 2 reported failed, got %v", report.FailedIDs)
	}
	if store.events[2].Status != StatusFailed {
		t.Fatalf("failed replay should stay failed, got %s", store.events[2].Status)
	}
}
