package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/earthmate/earthmate/internal/domain"
)

func TestActionPlanSendsPayload(t *testing.T) {
	var got domain.PlanPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/action_plan" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("missing request id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"footprint":9.68,"recommendations":["Switch to LED bulbs"],"ai_tips":"Cycle to work."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	payload := domain.PlanPayload{Travel: 200, Electricity: 300, Diet: "meat", Plastic: 10}

	res, err := c.ActionPlan(context.Background(), payload)
	if err != nil {
		t.Fatalf("ActionPlan failed: %v", err)
	}
	if diff := cmp.Diff(payload, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	want := &domain.PlanResult{Footprint: 9.68, Recommendations: []string{"Switch to LED bulbs"}, AITips: "Cycle to work."}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestActionPlanErrorBodyIsAResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"API response invalid"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).ActionPlan(context.Background(), domain.PlanPayload{})
	if err != nil {
		t.Fatalf("error body should not be a transport error: %v", err)
	}
	if !res.Failed() || res.Error != "API response invalid" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["message"] != "Hi" {
			t.Errorf("message = %q", body["message"])
		}
		_, _ = w.Write([]byte(`{"reply":"Hello!"}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, time.Second).Chat(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply.Reply != "Hello!" || reply.Error != "" {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestUndecodableBodyIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).Chat(context.Background(), "Hi"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := NewClient(url, time.Second).ActionPlan(context.Background(), domain.PlanPayload{}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"Backend running ✅"}`))
	}))
	defer srv.Close()

	h, err := NewClient(srv.URL, time.Second).Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status == "" {
		t.Error("expected status text")
	}
}
