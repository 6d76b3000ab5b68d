package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/earthmate/earthmate/internal/backend"
	"github.com/earthmate/earthmate/internal/config"
	"github.com/earthmate/earthmate/internal/domain"
	"github.com/earthmate/earthmate/internal/identity"
	"github.com/earthmate/earthmate/internal/session"
	"github.com/earthmate/earthmate/internal/store"
)

type fakeBackend struct {
	mu        sync.Mutex
	payloads  []domain.PlanPayload
	messages  []string
	chatGate  chan struct{}
	healthErr error
}

func (f *fakeBackend) ActionPlan(_ context.Context, p domain.PlanPayload) (*domain.PlanResult, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	return &domain.PlanResult{
		Footprint:       9.7,
		Recommendations: []string{"Take the bus"},
		AITips:          "**Cycle** more",
	}, nil
}

func (f *fakeBackend) Chat(ctx context.Context, message string) (*domain.ChatReply, error) {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	gate := f.chatGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.ChatReply{Reply: "Try cycling."}, nil
}

func (f *fakeBackend) Health(context.Context) (*backend.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &backend.Health{Status: "ok"}, nil
}

type testServer struct {
	*httptest.Server
	client *http.Client
	hub    *Hub
}

func newTestServer(t *testing.T, fb *fakeBackend, perMinute int) *testServer {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "earthmate.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}

	cfg := &config.Config{
		RequestTimeout: 5 * time.Second,
		RateLimit:      config.RateLimitConfig{RequestsPerMinute: perMinute},
	}
	hub := NewHub()
	reg := session.NewRegistry(fb, repo, "chatMessages", hub, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandler(ctx, cfg, reg, repo, fb, hub, NewRateLimiter(perMinute))

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		h.Wait()
		reg.CloseAll()
		_ = repo.Close()
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New failed: %v", err)
	}
	return &testServer{Server: srv, client: &http.Client{Jar: jar}, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, buf.Bytes()
}

func (s *testServer) state(t *testing.T) session.State {
	t.Helper()
	status, body := s.do(t, http.MethodGet, "/api/state", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /api/state = %d: %s", status, body)
	}
	var st session.State
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func (s *testServer) waitFor(t *testing.T, what string, cond func(session.State) bool) session.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := s.state(t)
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state %+v", what, st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStateDefaults(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, 20)

	st := srv.state(t)
	if st.View != domain.ViewPlan {
		t.Errorf("view = %q, want plan", st.View)
	}
	if st.Plan.Input != domain.DefaultPlanInput() {
		t.Errorf("plan input = %+v", st.Plan.Input)
	}
	if st.Plan.Phase != domain.PhaseIdle || st.Plan.Result != nil {
		t.Errorf("plan = %+v, want idle without result", st.Plan)
	}
	if len(st.Chat.Transcript) != 0 || st.Chat.Sending {
		t.Errorf("chat = %+v, want empty and idle", st.Chat)
	}
}

func TestPlanSubmitFlow(t *testing.T) {
	fb := &fakeBackend{}
	srv := newTestServer(t, fb, 20)

	for _, f := range []fieldRequest{
		{Name: domain.FieldTransport, Value: "bus"},
		{Name: domain.FieldElectricity, Value: "300"},
		{Name: domain.FieldDiet, Value: "plant"},
	} {
		if status, body := srv.do(t, http.MethodPut, "/api/plan/fields", f); status != http.StatusOK {
			t.Fatalf("PUT field %s = %d: %s", f.Name, status, body)
		}
	}

	status, body := srv.do(t, http.MethodPost, "/api/plan/submit", nil)
	if status != http.StatusAccepted {
		t.Fatalf("POST submit = %d: %s", status, body)
	}

	st := srv.waitFor(t, "plan to settle", func(st session.State) bool {
		return st.Plan.Phase == domain.PhaseSettled
	})
	if st.Plan.Loading || st.Plan.Result == nil {
		t.Fatalf("plan = %+v", st.Plan)
	}
	if got := st.Plan.Result.FootprintText(); got != "9.7" {
		t.Errorf("footprint = %q, want 9.7", got)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	want := domain.PlanPayload{Travel: 100, Electricity: 300, Diet: "plant", Plastic: 0}
	if len(fb.payloads) != 1 || fb.payloads[0] != want {
		t.Errorf("payloads = %+v, want [%+v]", fb.payloads, want)
	}
}

func TestPlanFieldRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, 20)

	tests := []struct {
		name string
		req  interface{}
	}{
		{"unknown field", fieldRequest{Name: "budget", Value: "1"}},
		{"invalid option", fieldRequest{Name: domain.FieldTransport, Value: "plane"}},
		{"malformed body", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := srv.do(t, http.MethodPut, "/api/plan/fields", tt.req)
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}
}

func TestChatSendStatuses(t *testing.T) {
	fb := &fakeBackend{chatGate: make(chan struct{})}
	srv := newTestServer(t, fb, 20)

	if status, _ := srv.do(t, http.MethodPost, "/api/chat/send", nil); status != http.StatusBadRequest {
		t.Fatalf("send with empty draft = %d, want 400", status)
	}

	srv.do(t, http.MethodPut, "/api/chat/draft", draftRequest{Text: "How do I cut emissions?"})
	status, body := srv.do(t, http.MethodPost, "/api/chat/send", nil)
	if status != http.StatusAccepted {
		t.Fatalf("send = %d: %s", status, body)
	}

	// The draft was cleared on admission; a busy session still reports 409.
	if status, _ := srv.do(t, http.MethodPost, "/api/chat/send", nil); status != http.StatusConflict {
		t.Fatalf("send with empty draft while in flight = %d, want 409", status)
	}

	srv.do(t, http.MethodPut, "/api/chat/draft", draftRequest{Text: "again"})
	status, body = srv.do(t, http.MethodPost, "/api/chat/send", nil)
	if status != http.StatusConflict {
		t.Fatalf("second send = %d, want 409", status)
	}
	var errResp map[string]string
	if err := json.Unmarshal(body, &errResp); err != nil || errResp["error"] != "request in flight" {
		t.Errorf("409 body = %s", body)
	}

	close(fb.chatGate)
	st := srv.waitFor(t, "reply", func(st session.State) bool {
		return st.Chat.Phase == domain.PhaseSettled
	})

	want := domain.Transcript{
		{Role: domain.RoleUser, Text: "How do I cut emissions?"},
		{Role: domain.RoleBot, Text: "Try cycling."},
	}
	if len(st.Chat.Transcript) != len(want) {
		t.Fatalf("transcript = %+v", st.Chat.Transcript)
	}
	for i := range want {
		if got := st.Chat.Transcript[i]; got.Role != want[i].Role || got.Text != want[i].Text {
			t.Errorf("transcript[%d] = %+v, want %+v", i, st.Chat.Transcript[i], want[i])
		}
	}
	if st.Chat.Draft != "again" {
		t.Errorf("rejected send must keep the draft, got %q", st.Chat.Draft)
	}
}

func TestChatSendRateLimited(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, 1)

	srv.do(t, http.MethodPut, "/api/chat/draft", draftRequest{Text: "first"})
	if status, _ := srv.do(t, http.MethodPost, "/api/chat/send", nil); status != http.StatusAccepted {
		t.Fatalf("first send = %d", status)
	}
	srv.waitFor(t, "reply", func(st session.State) bool { return st.Chat.Phase == domain.PhaseSettled })

	srv.do(t, http.MethodPut, "/api/chat/draft", draftRequest{Text: "second"})
	if status, _ := srv.do(t, http.MethodPost, "/api/chat/send", nil); status != http.StatusTooManyRequests {
		t.Errorf("second send = %d, want 429", status)
	}
}

func TestViewSelection(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, 20)

	if status, _ := srv.do(t, http.MethodPut, "/api/view", viewRequest{View: "chat"}); status != http.StatusOK {
		t.Fatalf("PUT view = %d", status)
	}
	if st := srv.state(t); st.View != domain.ViewChat {
		t.Errorf("view = %q, want chat", st.View)
	}
	if status, _ := srv.do(t, http.MethodPut, "/api/view", viewRequest{View: "settings"}); status != http.StatusBadRequest {
		t.Errorf("invalid view = %d, want 400", status)
	}
}

func TestHealth(t *testing.T) {
	fb := &fakeBackend{}
	srv := newTestServer(t, fb, 20)

	status, body := srv.do(t, http.MethodGet, "/api/health", nil)
	if status != http.StatusOK {
		t.Fatalf("health = %d: %s", status, body)
	}
	var resp healthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Store != "ok" || resp.Backend != "ok" {
		t.Errorf("health = %+v", resp)
	}

	fb.mu.Lock()
	fb.healthErr = errors.New("connection refused")
	fb.mu.Unlock()
	_, body = srv.do(t, http.MethodGet, "/api/health", nil)
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Backend != "unreachable" {
		t.Errorf("health with backend down = %+v", resp)
	}
}

func TestStateSocketPushesChanges(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, 20)
	srv.state(t) // establishes the identity cookie

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/state"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: srv.client})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first stateMessage
	readJSON(ctx, t, conn, &first)
	if first.Type != EventState || first.State.View != domain.ViewPlan {
		t.Fatalf("first message = %+v", first)
	}

	srv.do(t, http.MethodPut, "/api/view", viewRequest{View: "chat"})

	var ev session.Event
	readJSON(ctx, t, conn, &ev)
	if ev.Type != session.EventView || ev.View != domain.ViewChat {
		t.Errorf("event = %+v, want view change to chat", ev)
	}

	srv.do(t, http.MethodPut, "/api/chat/draft", draftRequest{Text: "hi"})
	ev = session.Event{}
	readJSON(ctx, t, conn, &ev)
	if ev.Type != session.EventChat || ev.Chat == nil || ev.Chat.Draft != "hi" || ev.Chat.Scroll {
		t.Errorf("event = %+v, want draft change without scroll", ev)
	}
}

func readJSON(ctx context.Context, t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}
