package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	consul "github.com/hashicorp/consul/api"
)

func TestHealthAggregator(t *testing.T) {
	h := NewHealthAggregator()
	h.AddCheck("redis", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	h.AddCheck("nats", func(context.Context) error { return errors.New("disconnected") })
	rec = httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["nats"] != "disconnected" || len(body) != 1 {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthChecksHonourTimeout(t *testing.T) {
	h := NewHealthAggregator()
	h.timeout = 0
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if failures := h.Run(context.Background()); failures["slow"] == "" {
		t.Fatal("slow check did not fail on timeout")
	}
}

func TestPickAddress(t *testing.T) {
	entries := []*consul.ServiceEntry{
		{Node: &consul.Node{Address: "10.0.0.1"}, Service: &consul.AgentService{Port: 8080}},
		{Node: &consul.Node{Address: "10.0.0.2"}, Service: &consul.AgentService{Address: "bingo-2", Port: 9090}},
	}
	first := func(int) int { return 0 }
	second := func(int) int { return 1 }

	if got, err := pickAddress(entries, first); err != nil || got != "10.0.0.1:8080" {
		t.Fatalf("first = %q, %v", got, err)
	}
	if got, err := pickAddress(entries, second); err != nil || got != "bingo-2:9090" {
		t.Fatalf("second = %q, %v", got, err)
	}
	if _, err := pickAddress(nil, first); err == nil {
		t.Fatal("expected error with no entries")
	}
}
