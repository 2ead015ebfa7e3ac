package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/workforce-ai/meter/pkg/meter"
	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
)

type fakeEvaluator struct {
	eval *models.Evaluation
	err  error
	got  string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, userID string) (*models.Evaluation, error) {
	f.got = userID
	return f.eval, f.err
}

type fakeRecorder struct {
	records []models.UsageRecord
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, rec models.UsageRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestHealth(t *testing.T) {
	h := NewServer(&fakeEvaluator{}, nil, nil).Handler()
	rr := do(t, h, "GET", "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestListPlans(t *testing.T) {
	h := NewServer(&fakeEvaluator{}, nil, nil).Handler()
	rr := do(t, h, "GET", "/v1/plans", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var plans []struct {
		Tier                  models.PlanTier `json:"tier"`
		PerProviderTokenLimit int64           `json:"per_provider_token_limit"`
		Price                 string          `json:"price"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&plans); err != nil {
		t.Fatal(err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if plans[0].Tier != models.TierFree || plans[0].PerProviderTokenLimit != 250_000 || plans[0].Price != "$0" {
		t.Errorf("unexpected free plan %+v", plans[0])
	}
	if plans[1].Price != "$20" || plans[2].Price != "Custom" {
		t.Errorf("unexpected prices %q %q", plans[1].Price, plans[2].Price)
	}
}

func TestGetUsage(t *testing.T) {
	ev := &fakeEvaluator{eval: &models.Evaluation{
		UserID: "alice",
		Report: models.UsageReport{
			Tier:  models.TierFree,
			Total: models.QuotaLine{Tokens: 200_000, Limit: 1_000_000, Percent: 20, Status: models.StatusOK},
		},
		Recommendation: models.Recommendation{ShouldPromptUpgrade: true, Reason: models.ReasonNearLimit},
	}}
	h := NewServer(ev, nil, nil).Handler()

	rr := do(t, h, "GET", "/v1/users/alice/usage", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}
	if ev.got != "alice" {
		t.Errorf("expected evaluator called for alice, got %q", ev.got)
	}

	var got models.Evaluation
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Report.Total.Percent != 20 || got.Recommendation.Reason != models.ReasonNearLimit {
		t.Errorf("unexpected body %+v", got)
	}
}

func TestGetUsageErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"unknown tier", &plan.UnknownTierError{Tier: "ultra"}, http.StatusUnprocessableEntity, "unknown_tier"},
		{"wrapped unknown tier", fmt.Errorf("evaluate: %w", &plan.UnknownTierError{Tier: "ultra"}), http.StatusUnprocessableEntity, "unknown_tier"},
		{"no plan", fmt.Errorf("evaluate alice: %w", meter.ErrNoPlan), http.StatusNotFound, "no_plan"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&fakeEvaluator{err: tt.err}, nil, nil).Handler()
			rr := do(t, h, "GET", "/v1/users/alice/usage", "")
			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rr.Code)
			}
			e := decodeError(t, rr)
			if e.Code != tt.wantKind {
				t.Errorf("expected code %s, got %s", tt.wantKind, e.Code)
			}
			if tt.wantKind == "internal" && strings.Contains(e.Error, "pq") {
				t.Errorf("internal error leaked: %s", e.Error)
			}
		})
	}
}

func TestRecordUsage(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewServer(&fakeEvaluator{}, rec, nil).Handler()

	rr := do(t, h, "POST", "/v1/users/alice/usage",
		`{"provider":"Anthropic","input_tokens":100,"output_tokens":20,"total_cost":0.01,"user_id":"mallory"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body)
	}
	if len(rec.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.records))
	}
	got := rec.records[0]
	if got.UserID != "alice" {
		t.Errorf("user id must come from the path, got %q", got.UserID)
	}
	if got.TotalTokens != 120 {
		t.Errorf("expected total derived from input+output, got %d", got.TotalTokens)
	}
}

func TestRecordUsageTotalSaturates(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewServer(&fakeEvaluator{}, rec, nil).Handler()

	body := fmt.Sprintf(`{"provider":"openai","input_tokens":%d,"output_tokens":%d}`, int64(math.MaxInt64), int64(1))
	rr := do(t, h, "POST", "/v1/users/alice/usage", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body)
	}
	if rec.records[0].TotalTokens != math.MaxInt64 {
		t.Errorf("expected saturated total, got %d", rec.records[0].TotalTokens)
	}
}

func TestRecordUsageRejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"bad json", `{"provider":`, http.StatusBadRequest},
		{"missing provider", `{"total_tokens":5}`, http.StatusBadRequest},
		{"negative tokens", `{"provider":"openai","total_tokens":-5}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			h := NewServer(&fakeEvaluator{}, rec, nil).Handler()
			rr := do(t, h, "POST", "/v1/users/alice/usage", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rr.Code)
			}
			if len(rec.records) != 0 {
				t.Error("rejected record was stored")
			}
		})
	}
}

func TestRecordUsageReadOnly(t *testing.T) {
	h := NewServer(&fakeEvaluator{}, nil, nil).Handler()
	rr := do(t, h, "POST", "/v1/users/alice/usage", `{"provider":"openai","total_tokens":5}`)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestRecordUsageStoreFailure(t *testing.T) {
	h := NewServer(&fakeEvaluator{}, &fakeRecorder{err: errors.New("disk full")}, nil).Handler()
	rr := do(t, h, "POST", "/v1/users/alice/usage", `{"provider":"openai","total_tokens":5}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if e := decodeError(t, rr); strings.Contains(e.Error, "disk") {
		t.Errorf("internal error leaked: %s", e.Error)
	}
}

func TestErrorsLoggedWithRequestID(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewServer(&fakeEvaluator{err: errors.New("db down")}, nil, zap.New(core)).Handler()

	rr := do(t, h, "GET", "/v1/users/alice/usage", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	entries := logs.FilterMessage("request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 logged failure, got %d", len(entries))
	}
	if id, ok := entries[0].ContextMap()["request_id"].(string); !ok || id == "" {
		t.Errorf("expected request_id on logged failure, got %v", entries[0].ContextMap())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer(&fakeEvaluator{}, nil, nil).Handler()
	rr := do(t, h, "GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
