package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func identityService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Write([]byte(`{"id":"player-7"}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteAuthenticate(t *testing.T) {
	a := NewRemote(identityService(t).URL, zaptest.NewLogger(t))
	ctx := context.Background()

	id, err := a.Authenticate(ctx, "good")
	if err != nil || id != "player-7" {
		t.Fatalf("Authenticate(good) = %q, %v", id, err)
	}
	if _, err := a.Authenticate(ctx, "bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad token err = %v, want ErrUnauthorized", err)
	}
	if _, err := a.Authenticate(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token err = %v, want ErrUnauthorized", err)
	}
	_, err = a.Authenticate(ctx, "broken")
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("upstream failure err = %v, want non-auth error", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/sessions/s1/ws?token=from-query", nil)
	if got := TokenFromRequest(r); got != "from-query" {
		t.Fatalf("token = %q, want from-query", got)
	}
	r.Header.Set("Authorization", "Bearer from-header")
	if got := TokenFromRequest(r); got != "from-header" {
		t.Fatalf("token = %q, want from-header", got)
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(Trust{}, zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PlayerID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer alice")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != "alice" {
		t.Fatalf("status = %d player = %q", rec.Code, seen)
	}
}
