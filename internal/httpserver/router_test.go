package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/internal/handler"
	"civicfund/internal/repository/memstore"
	"civicfund/internal/service/featured"
	"civicfund/internal/service/funding"
	"civicfund/internal/service/milestone"
	"civicfund/internal/service/pledge"
	"civicfund/internal/service/project"
	"civicfund/internal/service/txretry"
	"civicfund/pkg/auth"
	"civicfund/pkg/rbac"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, readiness map[string]ReadinessCheck) *gin.Engine {
	t.Helper()
	log := zap.NewNop()
	store := memstore.New()
	retry := txretry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	agg := funding.NewAggregator(store, log)
	projects := project.NewService(store, store, agg, project.DefaultLimits(), retry, log)
	allocator := milestone.NewAllocator(store, retry, log)
	ledger := pledge.NewLedger(store, retry, log)
	engine := featured.NewEngine(store, agg, 6, 50, log)

	return NewRouter(Handlers{
		Project:   handler.NewProjectHandler(projects, log),
		Milestone: handler.NewMilestoneHandler(allocator, log),
		Pledge:    handler.NewPledgeHandler(ledger, log),
		Featured:  handler.NewFeaturedHandler(engine, log),
	}, Options{JWTSecret: secret, Readiness: readiness}, log)
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, role, secret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func do(t *testing.T, r http.Handler, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func createProject(t *testing.T, r http.Handler, tok string, goal int64) string {
	t.Helper()
	code, body := do(t, r, http.MethodPost, "/api/v1/projects", tok, map[string]any{
		"title":            "Bike lanes",
		"description":      "Protected lanes on Main St",
		"funding_goal":     goal,
		"funding_deadline": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
	})
	if code != http.StatusCreated {
		t.Fatalf("create project: status %d body %v", code, body)
	}
	return body["project"].(map[string]any)["id"].(string)
}

func TestHealthAndReadiness(t *testing.T) {
	r := newTestRouter(t, map[string]ReadinessCheck{
		"db": func(context.Context) error { return errors.New("down") },
	})

	if code, _ := do(t, r, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz: %d", code)
	}
	code, body := do(t, r, http.MethodGet, "/readyz", "", nil)
	if code != http.StatusServiceUnavailable || body["status"] != "db_not_ready" {
		t.Fatalf("readyz: %d %v", code, body)
	}
}

func TestWritesRequireToken(t *testing.T) {
	r := newTestRouter(t, nil)

	if code, _ := do(t, r, http.MethodPost, "/api/v1/projects", "", map[string]any{}); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code, _ := do(t, r, http.MethodPost, "/api/v1/projects", "not-a-jwt", map[string]any{}); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/v1/projects", "", nil); code != http.StatusOK {
		t.Fatalf("expected public list, got %d", code)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	owner := token(t, "owner", rbac.RoleUser)
	id := createProject(t, r, owner, 10000)

	code, body := do(t, r, http.MethodPatch, "/api/v1/projects/"+id, owner, map[string]any{"status": "ACTIVE"})
	if code != http.StatusOK {
		t.Fatalf("activate: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodPatch, "/api/v1/projects/"+id, owner, map[string]any{"status": "COMPLETED"})
	if code != http.StatusConflict || body["code"] != "INVALID_STATE_TRANSITION" {
		t.Fatalf("expected 409 invalid transition, got %d %v", code, body)
	}
	meta, _ := body["metadata"].(map[string]any)
	if meta["from"] != "ACTIVE" || meta["to"] != "COMPLETED" {
		t.Fatalf("expected from/to metadata, got %v", meta)
	}

	other := token(t, "other", rbac.RoleUser)
	if code, _ := do(t, r, http.MethodPatch, "/api/v1/projects/"+id, other, map[string]any{"title": "Mine now"}); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-creator, got %d", code)
	}

	if code, _ := do(t, r, http.MethodGet, "/api/v1/projects/missing", "", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestMilestoneBudgetOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	owner := token(t, "owner", rbac.RoleUser)
	id := createProject(t, r, owner, 1000)
	path := "/api/v1/projects/" + id + "/milestones"

	if code, body := do(t, r, http.MethodPost, path, owner, map[string]any{"title": "Design", "funding_amount": 800}); code != http.StatusCreated {
		t.Fatalf("create milestone: %d %v", code, body)
	}
	code, body := do(t, r, http.MethodPost, path, owner, map[string]any{"title": "Build", "funding_amount": 300})
	if code != http.StatusUnprocessableEntity || body["code"] != "BUDGET_EXCEEDED" {
		t.Fatalf("expected 422 budget exceeded, got %d %v", code, body)
	}
	if meta, _ := body["metadata"].(map[string]any); meta["max_allowed"] != "200" {
		t.Fatalf("expected max_allowed 200, got %v", body["metadata"])
	}

	code, body = do(t, r, http.MethodGet, path, "", nil)
	if code != http.StatusOK || len(body["milestones"].([]any)) != 1 {
		t.Fatalf("list milestones: %d %v", code, body)
	}
}

func TestPledgeRelayOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	owner := token(t, "owner", rbac.RoleUser)
	admin := token(t, "ops", rbac.RoleAdmin)
	id := createProject(t, r, owner, 1000)

	payload := map[string]any{"pledge_id": "pl-1", "project_id": id, "backer_id": "b1", "amount": 250}
	if code, _ := do(t, r, http.MethodPost, "/api/v1/pledges", owner, payload); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin relay, got %d", code)
	}
	if code, body := do(t, r, http.MethodPost, "/api/v1/pledges", admin, payload); code != http.StatusCreated {
		t.Fatalf("record pledge: %d %v", code, body)
	}
	if code, body := do(t, r, http.MethodPost, "/api/v1/pledges/pl-1/events", admin, map[string]any{"status": "COMPLETED"}); code != http.StatusOK {
		t.Fatalf("complete pledge: %d %v", code, body)
	}
	code, body := do(t, r, http.MethodPost, "/api/v1/pledges/pl-1/events", admin, map[string]any{"status": "PENDING"})
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for backwards move, got %d %v", code, body)
	}

	_, body = do(t, r, http.MethodGet, "/api/v1/projects/"+id, "", nil)
	funding := body["project"].(map[string]any)["funding"].(map[string]any)
	if funding["current_funding"].(float64) != 250 || funding["funding_percentage"].(float64) != 25 {
		t.Fatalf("unexpected funding: %v", funding)
	}

	code, body = do(t, r, http.MethodGet, "/api/v1/projects/"+id+"/pledges?status=completed", owner, nil)
	if code != http.StatusOK || len(body["pledges"].([]any)) != 1 {
		t.Fatalf("list pledges: %d %v", code, body)
	}
}

func TestFeaturedOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	owner := token(t, "owner", rbac.RoleUser)
	id := createProject(t, r, owner, 1000)
	if code, _ := do(t, r, http.MethodPatch, "/api/v1/projects/"+id, owner, map[string]any{"status": "ACTIVE"}); code != http.StatusOK {
		t.Fatalf("activate: %d", code)
	}

	code, body := do(t, r, http.MethodGet, "/api/v1/featured-projects?limit=3", "", nil)
	if code != http.StatusOK || len(body["projects"].([]any)) != 1 {
		t.Fatalf("featured: %d %v", code, body)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/v1/featured-projects?limit=abc", "", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", code)
	}
}
