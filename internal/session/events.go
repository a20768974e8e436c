package session

import (
	"context"
	"time"

	"bingo/internal/game/card"
)

// Event is a committed change to a session. The set of events is closed;
// subscribers switch on the concrete type.
type Event interface {
	Session() string
	Kind() string
	isEvent()
}

// StateChanged carries the full session view after a join, start, caller
// change or attach.
type StateChanged struct {
	State Session `json:"state"`
}

type NumberDrawn struct {
	SessionID string `json:"sessionId"`
	Number    int    `json:"number"`
	Sequence  int    `json:"sequence"`
}

// CardUpdated is delivered only to the card's owner.
type CardUpdated struct {
	SessionID string     `json:"sessionId"`
	PlayerID  string     `json:"playerId"`
	Card      *card.Card `json:"card"`
}

type GameOver struct {
	SessionID string        `json:"sessionId"`
	WinnerID  string        `json:"winnerId"`
	Duration  time.Duration `json:"duration"`
	Players   int           `json:"players"`
}

type PlayerDisconnected struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
}

type SessionTerminated struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

func (e StateChanged) Session() string       { return e.State.ID }
func (e NumberDrawn) Session() string        { return e.SessionID }
func (e CardUpdated) Session() string        { return e.SessionID }
func (e GameOver) Session() string           { return e.SessionID }
func (e PlayerDisconnected) Session() string { return e.SessionID }
func (e SessionTerminated) Session() string  { return e.SessionID }

func (StateChanged) Kind() string       { return "game_state" }
func (NumberDrawn) Kind() string        { return "new_number" }
func (CardUpdated) Kind() string        { return "card_updated" }
func (GameOver) Kind() string           { return "game_over" }
func (PlayerDisconnected) Kind() string { return "player_disconnected" }
func (SessionTerminated) Kind() string  { return "session_terminated" }

func (StateChanged) isEvent()       {}
func (NumberDrawn) isEvent()        {}
func (CardUpdated) isEvent()        {}
func (GameOver) isEvent()           {}
func (PlayerDisconnected) isEvent() {}
func (SessionTerminated) isEvent()  {}

// Subscriber receives every committed event, in commit order per session.
// HandleEvent runs inside the session's critical section and must not
// block or call back into the Coordinator.
type Subscriber interface {
	HandleEvent(ctx context.Context, ev Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event)

func (f SubscriberFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }
