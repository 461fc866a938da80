package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/content"
	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/pacing"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/storage"
	"github.com/sungwon/campaign-dispatch/internal/storage/storagetest"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubDispatcher struct {
	summary dispatch.Summary
	err     error
	calls   int
}

func (d *stubDispatcher) Run(_ context.Context, c *storage.Campaign) (dispatch.Summary, error) {
	d.calls++
	s := d.summary
	s.CampaignID = c.ID
	return s, d.err
}

type testEnv struct {
	router  http.Handler
	store   *storagetest.Fake
	queue   *queue.MemoryQueue
	content *content.LocalStore
	jwt     *auth.JWTService
	ws      storage.Workspace
}

func newTestEnv(t *testing.T, runner Dispatcher) *testEnv {
	t.Helper()

	store := storagetest.New()
	ws, err := store.CreateWorkspace(context.Background(), "acme")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	q := queue.NewMemoryQueue(nil, nil, queue.DefaultConfig(), zerolog.Nop())
	if runner == nil {
		factory := dispatch.NewMessageFactory(store, delivery.NewQueueService(q, zerolog.Nop()), zerolog.Nop())
		stage := dispatch.NewCreateMessages(store, factory, pacing.Immediate{}, dispatch.Options{}, zerolog.Nop())
		runner = dispatch.NewRunner(store, stage, zerolog.Nop())
	}

	cs, err := content.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}

	jwtSvc := auth.NewJWTService(auth.Config{
		SigningKey: "api-test-signing-key-0123456789",
		Issuer:     "campaign-dispatch",
		Audience:   "campaign-dispatch-api",
	})

	router := NewRouter(Deps{
		Queries: store,
		DB:      stubPinger{},
		Runner:  runner,
		Content: cs,
		DLQ:     q,
		JWT:     jwtSvc,
	}, zerolog.Nop())

	return &testEnv{router: router, store: store, queue: q, content: cs, jwt: jwtSvc, ws: ws}
}

func (e *testEnv) token(t *testing.T, workspaceID int64) string {
	t.Helper()
	tok, err := e.jwt.GenerateToken(workspaceID, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, workspaceID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if workspaceID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token(t, workspaceID))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) campaign(t *testing.T, status string) storage.Campaign {
	t.Helper()
	c, err := e.store.CreateCampaign(context.Background(), storage.CreateCampaignParams{
		WorkspaceID: e.ws.ID,
		Name:        "launch",
		Status:      status,
		Subject:     "Hello",
		FromName:    "Acme",
		FromEmail:   "news@acme.test",
		SendToAll:   true,
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func campaignPath(id int64, suffix string) string {
	return "/api/v1/campaigns/" + strconv.FormatInt(id, 10) + suffix
}

func TestHealthzHandler_AlwaysOK(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})

	rec := env.do(t, http.MethodGet, "/healthz", nil, 0)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected X-Correlation-ID header")
	}
}

func TestReadyzHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"healthy", nil, http.StatusOK},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadyzHandler(stubPinger{err: tt.err}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.err != nil && rec.Header().Get("Retry-After") != "30" {
				t.Error("expected Retry-After header on unhealthy response")
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})
	env.do(t, http.MethodGet, "/healthz", nil, 0)

	rec := env.do(t, http.MethodGet, "/metrics", nil, 0)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Error("expected api_requests_total in metrics output")
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})
	c := env.campaign(t, storage.CampaignStatusQueued)

	rec := env.do(t, http.MethodPost, campaignPath(c.ID, "/dispatch"), nil, 0)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestDispatchCampaign_CreatesMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := env.store.UpsertSubscriber(ctx, storage.UpsertSubscriberParams{
			WorkspaceID: env.ws.ID,
			Email:       "sub" + strconv.Itoa(i) + "@example.com",
		}); err != nil {
			t.Fatalf("upsert subscriber: %v", err)
		}
	}
	c := env.campaign(t, storage.CampaignStatusQueued)

	rec := env.do(t, http.MethodPost, campaignPath(c.ID, "/dispatch"), nil, env.ws.ID)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var summary dispatch.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Created != 3 || summary.CampaignID != c.ID || summary.RunID == "" {
		t.Errorf("summary = %+v, want 3 created for campaign %d", summary, c.ID)
	}
	if got := len(env.queue.Pending()); got != 3 {
		t.Errorf("pending jobs = %d, want 3", got)
	}

	updated, err := env.store.GetCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}
	if updated.Status != storage.CampaignStatusSent {
		t.Errorf("campaign status = %q, want %q", updated.Status, storage.CampaignStatusSent)
	}

	// A second dispatch of a sent campaign is refused.
	rec = env.do(t, http.MethodPost, campaignPath(c.ID, "/dispatch"), nil, env.ws.ID)
	if rec.Code != http.StatusConflict {
		t.Errorf("second dispatch status = %d, want 409", rec.Code)
	}
}

func TestDispatchCampaign_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       func(c storage.Campaign) string
		workspace  func(env *testEnv) int64
		runErr     error
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "invalid id",
			path:       func(storage.Campaign) string { return "/api/v1/campaigns/abc/dispatch" },
			workspace:  func(env *testEnv) int64 { return env.ws.ID },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown campaign",
			path:       func(storage.Campaign) string { return campaignPath(9999, "/dispatch") },
			workspace:  func(env *testEnv) int64 { return env.ws.ID },
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "other workspace",
			path:       func(c storage.Campaign) string { return campaignPath(c.ID, "/dispatch") },
			workspace:  func(env *testEnv) int64 { return env.ws.ID + 100 },
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "not dispatchable",
			path:       func(c storage.Campaign) string { return campaignPath(c.ID, "/dispatch") },
			workspace:  func(env *testEnv) int64 { return env.ws.ID },
			runErr:     dispatch.ErrNotDispatchable,
			wantStatus: http.StatusConflict,
			wantCalls:  1,
		},
		{
			name:       "incomplete run",
			path:       func(c storage.Campaign) string { return campaignPath(c.ID, "/dispatch") },
			workspace:  func(env *testEnv) int64 { return env.ws.ID },
			runErr:     fmt.Errorf("dispatch campaign 1: %w", dispatch.ErrIncomplete),
			wantStatus: http.StatusServiceUnavailable,
			wantCalls:  1,
		},
		{
			name:       "pipeline failure",
			path:       func(c storage.Campaign) string { return campaignPath(c.ID, "/dispatch") },
			workspace:  func(env *testEnv) int64 { return env.ws.ID },
			runErr:     errors.New("database unavailable"),
			wantStatus: http.StatusInternalServerError,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubDispatcher{err: tt.runErr}
			env := newTestEnv(t, runner)
			c := env.campaign(t, storage.CampaignStatusQueued)

			rec := env.do(t, http.MethodPost, tt.path(c), nil, tt.workspace(env))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if runner.calls != tt.wantCalls {
				t.Errorf("runner calls = %d, want %d", runner.calls, tt.wantCalls)
			}
		})
	}
}

func TestCampaignStats(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})
	c := env.campaign(t, storage.CampaignStatusSending)
	now := time.Now()
	env.store.PutMessage(storage.Message{ID: 1001, WorkspaceID: env.ws.ID, SubscriberID: 1, SourceType: storage.SourceTypeCampaign, SourceID: c.ID, DelayedSendAt: storage.Timestamptz(now)})
	env.store.PutMessage(storage.Message{ID: 1002, WorkspaceID: env.ws.ID, SubscriberID: 2, SourceType: storage.SourceTypeCampaign, SourceID: c.ID, DelayedSendAt: storage.Timestamptz(now), SentAt: storage.Timestamptz(now)})

	rec := env.do(t, http.MethodGet, campaignPath(c.ID, "/stats"), nil, env.ws.ID)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp campaignStatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != storage.CampaignStatusSending {
		t.Errorf("status = %q, want sending", resp.Status)
	}
	if resp.Stats.Total != 2 || resp.Stats.Sent != 1 || resp.Stats.Pending != 1 {
		t.Errorf("stats = %+v, want total 2, sent 1, pending 1", resp.Stats)
	}
}

func TestCampaignContent_PutAndGet(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})
	c := env.campaign(t, storage.CampaignStatusDraft)
	body := []byte("<h1>Spring sale</h1>")

	rec := env.do(t, http.MethodPut, campaignPath(c.ID, "/content"), body, env.ws.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var resp contentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Bytes != len(body) || resp.Key != content.Key(c.ID) {
		t.Errorf("response = %+v", resp)
	}

	stored, err := env.content.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("content Get() error = %v", err)
	}
	if !bytes.Equal(stored, body) {
		t.Errorf("stored = %q, want %q", stored, body)
	}

	rec = env.do(t, http.MethodGet, campaignPath(c.ID, "/content"), nil, env.ws.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(body) {
		t.Errorf("get body = %q, want %q", rec.Body.String(), body)
	}
}

func TestCampaignContent_Errors(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})
	c := env.campaign(t, storage.CampaignStatusDraft)

	rec := env.do(t, http.MethodPut, campaignPath(c.ID, "/content"), nil, env.ws.ID)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty put status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, campaignPath(c.ID, "/content"), nil, env.ws.ID)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing content status = %d, want 404", rec.Code)
	}

	big := bytes.Repeat([]byte("x"), maxContentBytes+1)
	rec = env.do(t, http.MethodPut, campaignPath(c.ID, "/content"), big, env.ws.ID)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized put status = %d, want 413", rec.Code)
	}
}

func TestDLQReprocess(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})
	ctx := context.Background()
	job := queue.NewJob(1, env.ws.ID, 2, time.Now().Add(-time.Hour))
	job.RetryCount = 5
	if err := env.queue.MoveToDLQ(ctx, job, "smtp unavailable"); err != nil {
		t.Fatalf("MoveToDLQ() error = %v", err)
	}
	ids := env.queue.DeadLetters()

	body, _ := json.Marshal(dlqReprocessRequest{EntryIDs: append(ids, "missing")})
	rec := env.do(t, http.MethodPost, "/api/v1/dlq/reprocess", body, env.ws.ID)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var resp dlqReprocessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reprocessed != 1 || resp.Total != 2 {
		t.Errorf("response = %+v, want 1 of 2 reprocessed", resp)
	}
	if len(env.queue.DeadLetters()) != 0 {
		t.Error("expected dead letters to be drained")
	}
	pending := env.queue.Pending()
	if len(pending) != 1 || pending[0].RetryCount != 0 {
		t.Errorf("pending = %+v, want one job with retry count reset", pending)
	}
}

func TestDLQReprocess_Validation(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"empty ids", `{"entry_ids":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/dlq/reprocess", []byte(tt.body), env.ws.ID)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestCorrelationIDMiddleware_PreservesHeader(t *testing.T) {
	h := CorrelationIDMiddleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}
