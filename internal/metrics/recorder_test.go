package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bingo/internal/session"
)

func TestRecorderCountsEvents(t *testing.T) {
	r, err := New("bingo")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	r.HandleEvent(ctx, session.NumberDrawn{SessionID: "s1", Number: 4, Sequence: 1})
	r.HandleEvent(ctx, session.NumberDrawn{SessionID: "s1", Number: 9, Sequence: 2})
	r.HandleEvent(ctx, session.PlayerDisconnected{SessionID: "s1", PlayerID: "bob"})
	r.HandleEvent(ctx, session.GameOver{SessionID: "s1", WinnerID: "alice", Duration: time.Minute, Players: 2})

	tests := map[string]int{
		"bingo.draws":                     2,
		"bingo.events.new_number":         2,
		"bingo.disconnects":               1,
		"bingo.games.finished":            1,
		"bingo.events.game_over":          1,
		"bingo.games.terminated":          0,
		"bingo.events.session_terminated": 0,
	}
	for key, want := range tests {
		if got := r.Counter(key); got != want {
			t.Errorf("%s = %d, want %d", key, got, want)
		}
	}
}

func TestRecorderHandler(t *testing.T) {
	r, err := New("bingo")
	if err != nil {
		t.Fatal(err)
	}
	r.SetConnections(3)
	r.HandleEvent(context.Background(), session.NumberDrawn{SessionID: "s1", Number: 1, Sequence: 1})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "bingo.draws") || !strings.Contains(body, "bingo.connections") {
		t.Fatalf("body missing metrics: %s", body)
	}
}
