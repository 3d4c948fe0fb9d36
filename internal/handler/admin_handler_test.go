package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/pkg/outbox"
)

type stubReplayer struct {
	lastLimit int
	report    outbox.ReplayReport
}

func (s *stubReplayer) ReplayEvent(_ context.Context, id int64) error {
	switch id {
	case 1:
		return nil
	case 2:
		return fmt.Errorf("%w: %d", outbox.ErrAlreadySent, id)
	case 3:
		return errors.New("broker unavailable")
	}
	return fmt.Errorf("%w: %d", outbox.ErrEventNotFound, id)
}

func (s *stubReplayer) ReplayFailedEvents(_ context.Context, limit int) (outbox.ReplayReport, error) {
	s.lastLimit = limit
	return s.report, nil
}

func adminRouter(r *stubReplayer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAdminHandler(r, zap.NewNop())
	e := gin.New()
	e.POST("/replay", h.ReplayOutboxEvent)
	e.POST("/replay-failed", h.ReplayFailedEvents)
	return e
}

func TestReplayOutboxEventStatusCodes(t *testing.T) {
	router := adminRouter(&stubReplayer{})
	cases := []struct {
		query string
		want  int
	}{
		{"id=1", http.StatusOK},
		{"id=2", http.StatusConflict},
		{"id=3", http.StatusBadGateway},
		{"id=4", http.StatusNotFound},
		{"id=abc", http.StatusBadRequest},
		{"id=0", http.StatusBadRequest},
		{"", http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/replay?"+tc.query, nil))
		if w.Code != tc.want {
			t.Errorf("%q: expected %d, got %d (%s)", tc.query, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestReplayFailedEventsReturnsReport(t *testing.T) {
	stub := &stubReplayer{report: outbox.ReplayReport{Scanned: 3, Replayed: 2, FailedIDs: []int64{9}}}
	router := adminRouter(stub)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/replay-failed", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if stub.lastLimit != defaultReplayLimit {
		t.Fatalf("expected default limit, got %d", stub.lastLimit)
	}
	var body struct {
		Report outbox.ReplayReport `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Report.Replayed != 2 || len(body.Report.FailedIDs) != 1 {
		t.Fatalf("unexpected report %+v", body.Report)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/replay-failed?limit=5000", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", w.Code)
	}
}
