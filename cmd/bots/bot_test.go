package main

import (
	"context"
	"math/rand/v2"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"bingo/internal/api"
	"bingo/internal/auth"
	"bingo/internal/game/card"
	"bingo/internal/game/draw"
	"bingo/internal/network"
	"bingo/internal/session"
	"bingo/internal/store"
)

func startServer(t *testing.T) (string, *session.Coordinator) {
	t.Helper()
	// Server and bot goroutines can log after the test returns.
	log := zap.NewNop()
	hub := network.NewHub(log)
	coord := session.NewCoordinator(session.Options{
		Store:       store.NewMemoryStore(nil, time.Hour),
		Cards:       card.NewFactory(rand.New(rand.NewPCG(5, 6))),
		Drawer:      draw.NewDrawer(rand.New(rand.NewPCG(7, 8))),
		Presence:    hub,
		Subscribers: []session.Subscriber{session.NewHubFanout(hub)},
		Logger:      log,
	})
	ws := network.NewServer(hub, session.NewGameHandler(coord, auth.Trust{}, log), log)

	r := chi.NewRouter()
	r.Get("/sessions/{id}/ws", ws.ServeHTTP)
	api.New(coord, nil, log).Routes(r, auth.Trust{})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), coord
}

func TestBotsPlayGameToCompletion(t *testing.T) {
	host, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := gameConfig{Server: host, Players: 3, DrawInterval: 2 * time.Millisecond}
	winner, err := playGame(ctx, cfg, "t", zap.NewNop())
	if err != nil {
		t.Fatalf("playGame: %v", err)
	}
	if !slices.Contains([]string{"bot-t-0", "bot-t-1", "bot-t-2"}, winner) {
		t.Fatalf("winner = %q", winner)
	}
}

func TestConcurrentGames(t *testing.T) {
	host, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := gameConfig{Server: host, Players: 2, DrawInterval: 2 * time.Millisecond}
	errs := make(chan error, 4)
	for g := range 4 {
		go func() {
			_, err := playGame(ctx, cfg, string(rune('a'+g)), zap.NewNop())
			errs <- err
		}()
	}
	for range 4 {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}

func TestPlayGameRejectsBadPlayerCount(t *testing.T) {
	cfg := gameConfig{Server: "unused", Players: 1, DrawInterval: time.Millisecond}
	if _, err := playGame(context.Background(), cfg, "x", zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected error for a single player")
	}
}

func TestHandleClaimsOnce(t *testing.T) {
	b := &bot{id: "p", log: zaptest.NewLogger(t), results: make(chan string, 1)}
	c := &card.Card{}
	c.Numbers[0][0] = 5
	b.card = c

	n := 5
	out := b.handle(newNumber(n))
	if len(out) != 2 || out[0].Type != "mark_number" || out[1].Type != "claim_victory" {
		t.Fatalf("replies = %+v", out)
	}
	n = 6
	if out := b.handle(newNumber(n)); len(out) != 0 {
		t.Fatalf("second claim sent: %+v", out)
	}
}

func newNumber(n int) network.Message {
	return network.Message{Type: "new_number", Number: &n}
}
