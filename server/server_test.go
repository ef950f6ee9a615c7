package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/bingwa/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/bingwa/agent/contract"
	"github.com/tanpawarit/bingwa/domain/catalog"
	"github.com/tanpawarit/bingwa/domain/order"
)

type fakeOrchestrator struct {
	emit []contractx.Turn
	resp contractx.ChatResponse
	err  error
	got  []contractx.ChatRequest
}

func (f *fakeOrchestrator) Handle(ctx context.Context, req contractx.ChatRequest, sink contractx.Sink) (contractx.ChatResponse, error) {
	f.got = append(f.got, req)
	for _, turn := range f.emit {
		sink(turn)
	}
	if f.err != nil {
		return contractx.ChatResponse{}, f.err
	}
	resp := f.resp
	resp.SessionID = req.SessionID
	return resp, nil
}

type fakeTools struct{}

func (fakeTools) Invoke(ctx context.Context, name string, args map[string]any) contractx.ToolResult {
	return contractx.ToolResult{Tool: name}
}

func (fakeTools) ToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{{
		Name: "listServices",
		Desc: "List services",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"category": {Type: schema.String, Desc: "Category"},
		}),
	}}
}

type fakeVerifier struct{ err error }

func (f fakeVerifier) Verify(signature string, body []byte) error {
	if signature == "" {
		return errors.New("missing")
	}
	return f.err
}

func newTestServer(t *testing.T, orch contractx.Orchestrator, fulfillment Fulfillment, verifier SignatureVerifier, cfg Config) http.Handler {
	t.Helper()
	srv, err := New(cfg, Deps{
		Orchestrator: orch,
		Tools:        fakeTools{},
		Fulfillment:  fulfillment,
		Verifier:     verifier,
		NewSessionID: func() string { return "generated-session" },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv.Handler()
}

func readEvents(t *testing.T, body *bytes.Buffer) []chatEvent {
	t.Helper()
	var events []chatEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt chatEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			t.Fatalf("invalid ndjson line %q: %v", line, err)
		}
		events = append(events, evt)
	}
	return events
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeOrchestrator{}, nil, nil, Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestChatStreamsTurnsAndDone(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{
		emit: []contractx.Turn{
			{Role: contractx.RoleAssistant, ToolCalls: []contractx.ToolCall{{ID: "c1", Name: "listServices"}}},
			{Role: contractx.RoleTool, ToolCallID: "c1", ToolName: "listServices", Result: &contractx.ToolResult{Tool: "listServices"}},
			{Role: contractx.RoleAssistant, Content: "We have plumbing."},
		},
		resp: contractx.ChatResponse{Reply: "We have plumbing."},
	}
	h := newTestServer(t, orch, nil, nil, Config{})

	body := `{"turns":[{"role":"user","content":"services?"}]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != ndjsonType {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if rec.Header().Get("X-Session-Id") != "generated-session" {
		t.Fatalf("expected generated session id, got %q", rec.Header().Get("X-Session-Id"))
	}
	if len(orch.got) != 1 || orch.got[0].SessionID != "generated-session" {
		t.Fatalf("orchestrator did not receive generated session: %+v", orch.got)
	}

	events := readEvents(t, rec.Body)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i := 0; i < 3; i++ {
		if events[i].Type != eventTurn || events[i].Turn == nil {
			t.Fatalf("event %d should be a turn: %+v", i, events[i])
		}
	}
	if events[1].Turn.ToolCallID != "c1" {
		t.Fatalf("unexpected tool turn: %+v", events[1].Turn)
	}
	if events[3].Type != eventDone || events[3].Reply != "We have plumbing." {
		t.Fatalf("unexpected final event: %+v", events[3])
	}
}

func TestChatKeepsProvidedSession(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{resp: contractx.ChatResponse{Reply: "hi"}}
	h := newTestServer(t, orch, nil, nil, Config{})

	body := `{"sessionId":"abc","turns":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body)))

	if orch.got[0].SessionID != "abc" {
		t.Fatalf("unexpected session: %s", orch.got[0].SessionID)
	}
}

func TestChatValidationErrorBeforeStreaming(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{err: orchestrator.ErrInvalidMessage}
	h := newTestServer(t, orch, nil, nil, Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"turns":[]}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	events := readEvents(t, rec.Body)
	if len(events) != 1 || events[0].Type != eventError || events[0].Error.Kind != contractx.KindInvalidArguments {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestChatUpstreamErrorAfterStreaming(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{
		emit: []contractx.Turn{{Role: contractx.RoleAssistant, ToolCalls: []contractx.ToolCall{{ID: "c1", Name: "x"}}}},
		err:  errors.New("boom"),
	}
	h := newTestServer(t, orch, nil, nil, Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"turns":[{"role":"user","content":"hi"}]}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status is fixed once streaming started, got %d", rec.Code)
	}
	events := readEvents(t, rec.Body)
	last := events[len(events)-1]
	if last.Type != eventError || last.Error.Kind != contractx.KindUpstreamUnavailable {
		t.Fatalf("unexpected final event: %+v", last)
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{}
	h := newTestServer(t, orch, nil, nil, Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{not json`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(orch.got) != 0 {
		t.Fatal("malformed body must not reach the orchestrator")
	}
}

func TestChatRateLimited(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{resp: contractx.ChatResponse{Reply: "ok"}}
	h := newTestServer(t, orch, nil, nil, Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"turns":[{"role":"user","content":"hi"}]}`))
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", code)
	}
}

func TestIPRateLimiterForgetsIdleVisitors(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	if !l.allow("1.1.1.1") {
		t.Fatal("first request should pass")
	}
	now = now.Add(2 * limiterIdleTTL)
	l.allow("2.2.2.2")
	if _, ok := l.visitors["1.1.1.1"]; ok {
		t.Fatal("idle visitor should be swept")
	}
}

func TestOperations(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeOrchestrator{}, nil, nil, Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/operations", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var out struct {
		Operations []struct {
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters"`
		} `json:"operations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Operations) != 1 || out.Operations[0].Name != "listServices" {
		t.Fatalf("unexpected operations: %+v", out.Operations)
	}
	props, ok := out.Operations[0].Parameters["properties"].(map[string]any)
	if !ok || props["category"] == nil {
		t.Fatalf("expected category property, got %v", out.Operations[0].Parameters)
	}
}

func newOrderManager(t *testing.T) (*order.Manager, order.Order) {
	t.Helper()

	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.FixedZone("EAT", 3*60*60))
	m, err := order.NewManager(order.Deps{
		Orders:  order.NewMemoryStore(),
		Catalog: catalog.MustDefault(),
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	o, err := m.Create(context.Background(), order.CreateInput{
		ServiceID:     "plumbing",
		VariantID:     "plumbing-basic",
		ProviderID:    "provider1",
		Location:      order.Location{City: "Nairobi", Area: "Kilimani"},
		ScheduledTime: now.Add(24 * time.Hour),
		Customer:      order.CustomerDetails{Name: "Jane", Phone: "+254712345678", Address: "Rd", Area: "Kilimani", City: "Nairobi"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return m, o
}

func postWebhook(h http.Handler, signature, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/fulfillment", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFulfillmentWebhook(t *testing.T) {
	t.Parallel()

	m, o := newOrderManager(t)
	h := newTestServer(t, &fakeOrchestrator{}, m, fakeVerifier{}, Config{})

	rec := postWebhook(h, "sig", `{"orderId":"`+o.ID+`","status":"confirmed","note":"provider accepted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	got, err := m.Get(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != order.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}

	// redelivery is acknowledged without another transition
	rec = postWebhook(h, "sig", `{"orderId":"`+o.ID+`","status":"confirmed"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"applied":false`) {
		t.Fatalf("unexpected redelivery response: %d %s", rec.Code, rec.Body.String())
	}

	rec = postWebhook(h, "sig", `{"orderId":"`+o.ID+`","status":"completed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("skipping in_progress should conflict, got %d", rec.Code)
	}
}

func TestFulfillmentWebhookCancel(t *testing.T) {
	t.Parallel()

	m, o := newOrderManager(t)
	h := newTestServer(t, &fakeOrchestrator{}, m, fakeVerifier{}, Config{})

	rec := postWebhook(h, "sig", `{"orderId":"`+o.ID+`","status":"cancelled"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	got, _ := m.Get(context.Background(), o.ID)
	if got.Status != order.StatusCancelled || got.Cancellation == nil || got.Cancellation.Reason != defaultProviderCancelReason {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestFulfillmentWebhookRejects(t *testing.T) {
	t.Parallel()

	m, o := newOrderManager(t)
	h := newTestServer(t, &fakeOrchestrator{}, m, fakeVerifier{}, Config{})

	tests := []struct {
		name      string
		signature string
		body      string
		want      int
	}{
		{name: "missing signature", body: `{"orderId":"` + o.ID + `","status":"confirmed"}`, want: http.StatusUnauthorized},
		{name: "bad json", signature: "sig", body: `{`, want: http.StatusBadRequest},
		{name: "pending", signature: "sig", body: `{"orderId":"` + o.ID + `","status":"pending"}`, want: http.StatusBadRequest},
		{name: "unknown status", signature: "sig", body: `{"orderId":"` + o.ID + `","status":"teleported"}`, want: http.StatusBadRequest},
		{name: "unknown order", signature: "sig", body: `{"orderId":"ord_missing","status":"confirmed"}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := postWebhook(h, tt.signature, tt.body); rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tt.name, tt.want, rec.Code, rec.Body.String())
		}
	}

	got, _ := m.Get(context.Background(), o.ID)
	if got.Status != order.StatusPending {
		t.Fatalf("rejected updates must not change the order, got %s", got.Status)
	}
}

func TestWebhookNotMountedWithoutVerifier(t *testing.T) {
	t.Parallel()

	m, _ := newOrderManager(t)
	h := newTestServer(t, &fakeOrchestrator{}, m, nil, Config{})

	if rec := postWebhook(h, "sig", `{}`); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected route to be absent, got %d", rec.Code)
	}
}
