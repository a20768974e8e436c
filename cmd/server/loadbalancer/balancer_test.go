package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestForSessionIsStable(t *testing.T) {
	store := &BackendsStore{}
	store.SetAddrs([]string{"a:1", "b:1", "c:1"})

	picked := make(map[string]string)
	for i := range 200 {
		id := fmt.Sprintf("s%d", i)
		picked[id] = store.ForSession(id).URL.Host
	}

	// Same set in another order routes identically.
	store.SetAddrs([]string{"c:1", "a:1", "b:1"})
	for id, host := range picked {
		if got := store.ForSession(id).URL.Host; got != host {
			t.Fatalf("session %s moved from %s to %s", id, host, got)
		}
	}

	// Removing a backend only moves the sessions it held.
	store.SetAddrs([]string{"a:1", "c:1"})
	for id, host := range picked {
		got := store.ForSession(id).URL.Host
		if host != "b:1" && got != host {
			t.Fatalf("session %s moved from %s to %s", id, host, got)
		}
	}
}

func TestForSessionSpreads(t *testing.T) {
	store := &BackendsStore{}
	store.SetAddrs([]string{"a:1", "b:1", "c:1"})
	counts := make(map[string]int)
	for i := range 300 {
		counts[store.ForSession(fmt.Sprintf("s%d", i)).URL.Host]++
	}
	for host, n := range counts {
		if n < 50 {
			t.Errorf("backend %s got only %d of 300 sessions", host, n)
		}
	}
	if len(counts) != 3 {
		t.Fatalf("sessions reached %d backends, want 3", len(counts))
	}
}

func TestEmptyStore(t *testing.T) {
	store := &BackendsStore{}
	if store.GetNext() != nil || store.ForSession("s1") != nil {
		t.Fatal("empty store returned a backend")
	}
}

func backend(t *testing.T, name string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s %s", name, r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRouterProxiesBySession(t *testing.T) {
	store := &BackendsStore{}
	lb := httptest.NewServer(newRouter(store, "bingo", zaptest.NewLogger(t)))
	defer lb.Close()

	if code, _ := get(t, lb.URL+"/sessions/s1"); code != http.StatusServiceUnavailable {
		t.Fatalf("no backends: status %d", code)
	}
	if code, _ := get(t, lb.URL+"/healthz"); code != http.StatusServiceUnavailable {
		t.Fatalf("healthz without backends: status %d", code)
	}

	store.SetAddrs([]string{backend(t, "one"), backend(t, "two")})

	_, first := get(t, lb.URL+"/sessions/s42")
	name := strings.Fields(first)[0]
	for range 5 {
		_, body := get(t, lb.URL+"/sessions/s42/ws")
		if !strings.HasPrefix(body, name+" ") {
			t.Fatalf("session request went to %q, want %s", body, name)
		}
	}

	seen := make(map[string]bool)
	for range 4 {
		_, body := get(t, lb.URL+"/players/alice")
		seen[strings.Fields(body)[0]] = true
	}
	if len(seen) != 2 {
		t.Fatalf("round robin reached %v", seen)
	}
}
