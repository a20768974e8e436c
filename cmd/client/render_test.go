package main

import (
	"strings"
	"testing"

	"bingo/internal/game/card"
	"bingo/internal/session"
)

func TestRenderCard(t *testing.T) {
	c := &card.Card{}
	c.Numbers[0][0] = 7
	c.Numbers[0][1] = 15
	c.Numbers[1][8] = 90
	c.Marked[0][0] = true

	out := renderCard(c, []int{7, 15})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != card.Rows {
		t.Fatalf("got %d lines, want %d", len(lines), card.Rows)
	}
	if !strings.HasPrefix(lines[0], " [ 7] *15 ") {
		t.Errorf("row 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "  90 ") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if strings.Trim(lines[2], " .") != "" {
		t.Errorf("row 2 should be blank, got %q", lines[2])
	}
}

func TestRenderState(t *testing.T) {
	n := 42
	got := renderState(session.Session{
		ID:            "s1",
		Status:        session.StatusActive,
		MaxPlayers:    4,
		PlayerIDs:     []string{"alice", "bob"},
		CallerID:      "bob",
		CurrentNumber: &n,
	})
	want := "session s1 [active] players alice,bob (2/4) caller bob current 42"
	if got != want {
		t.Fatalf("renderState = %q, want %q", got, want)
	}
}
