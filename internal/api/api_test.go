package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"bingo/internal/auth"
	"bingo/internal/clock"
	"bingo/internal/game/card"
	"bingo/internal/game/draw"
	"bingo/internal/history"
	"bingo/internal/session"
	"bingo/internal/store"
)

type fakePlayers struct {
	players map[string]history.Player
	games   []history.Game
	limit   int
}

func (f *fakePlayers) History(_ context.Context, _ string, limit int) ([]history.Game, error) {
	f.limit = limit
	return f.games, nil
}

func (f *fakePlayers) Player(_ context.Context, id string) (history.Player, error) {
	p, ok := f.players[id]
	if !ok {
		return history.Player{}, history.ErrPlayerNotFound
	}
	return p, nil
}

func newTestServer(t *testing.T, players Players) *httptest.Server {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC))
	seq := 0
	coord := session.NewCoordinator(session.Options{
		Store:  store.NewMemoryStore(clk, time.Hour),
		Cards:  card.NewFactory(nil),
		Drawer: draw.NewDrawer(nil),
		Clock:  clk,
		Logger: zaptest.NewLogger(t),
		NewID: func() string {
			seq++
			return fmt.Sprintf("s%d", seq)
		},
	})
	r := chi.NewRouter()
	New(coord, players, zaptest.NewLogger(t)).Routes(r, auth.Trust{})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateAndGetSession(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/sessions", "alice", `{"maxPlayers":3}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created session.Session
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID != "s1" || created.CreatorID != "alice" || created.MaxPlayers != 3 {
		t.Fatalf("created %+v", created)
	}

	resp = do(t, http.MethodGet, srv.URL+"/sessions/s1", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got session.Session
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != session.StatusWaiting || got.CallerID != "alice" {
		t.Fatalf("snapshot %+v", got)
	}
}

func TestCreateSessionRejections(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name  string
		token string
		body  string
		want  int
	}{
		{"no token", "", `{"maxPlayers":2}`, http.StatusUnauthorized},
		{"bad json", "alice", `{`, http.StatusBadRequest},
		{"too many players", "alice", `{"maxPlayers":9}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/sessions", tt.token, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestGetUnknownSession(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := do(t, http.MethodGet, srv.URL+"/sessions/nope", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestTerminateSession(t *testing.T) {
	srv := newTestServer(t, nil)
	if resp := do(t, http.MethodPost, srv.URL+"/sessions", "alice", `{"maxPlayers":2}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	if resp := do(t, http.MethodDelete, srv.URL+"/sessions/s1", "bob", ""); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger terminate status = %d, want 403", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/sessions/s1", "alice", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("terminate status = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/sessions/s1", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("terminated session status = %d, want 404", resp.StatusCode)
	}
}

func TestListWaitingSessions(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, creator := range []string{"alice", "bob", "carol"} {
		if resp := do(t, http.MethodPost, srv.URL+"/sessions", creator, `{"maxPlayers":2}`); resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status = %d", resp.StatusCode)
		}
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/sessions/s2", "bob", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("terminate status = %d", resp.StatusCode)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/sessions?status=waiting", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous list status = %d, want 401", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/sessions?status=active", "dave", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("active list status = %d, want 400", resp.StatusCode)
	}

	resp := do(t, http.MethodGet, srv.URL+"/sessions?status=waiting", "dave", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var listed []session.Session
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, s := range listed {
		ids = append(ids, s.ID)
	}
	if want := []string{"s1", "s3"}; !slices.Equal(ids, want) {
		t.Fatalf("listed %v, want %v", ids, want)
	}
}

func TestPlayerRoutes(t *testing.T) {
	players := &fakePlayers{
		players: map[string]history.Player{"alice": {ID: "alice", Rating: 1025, GamesPlayed: 1, GamesWon: 1}},
		games:   []history.Game{{SessionID: "s1", WinnerID: "alice"}},
	}
	srv := newTestServer(t, players)

	resp := do(t, http.MethodGet, srv.URL+"/players/alice", "", "")
	var p history.Player
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || p.Rating != 1025 {
		t.Fatalf("player = %d %+v", resp.StatusCode, p)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/players/bob", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown player status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/players/alice/history?limit=5", "", "")
	var games []history.Game
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		t.Fatal(err)
	}
	if len(games) != 1 || games[0].WinnerID != "alice" || players.limit != 5 {
		t.Fatalf("history = %+v (limit %d)", games, players.limit)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/players/alice/history?limit=x", "", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", resp.StatusCode)
	}
}

func TestPlayerRoutesWithoutHistory(t *testing.T) {
	srv := newTestServer(t, nil)
	if resp := do(t, http.MethodGet, srv.URL+"/players/alice", "", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
