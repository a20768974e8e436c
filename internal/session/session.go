// Package session runs bingo sessions. A Coordinator owns every mutation of
// session state and applies them one at a time per session; a GameHandler
// adapts socket traffic to coordinator calls.
package session

import (
	"slices"
	"time"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

const (
	MinPlayers = 2
	MaxPlayers = 4
)

// Session is the stored state of one game. CalledNumbers lives in its own
// list in the store and is attached on load; CurrentNumber is derived from
// it.
type Session struct {
	ID         string     `json:"id" cbor:"id"`
	Status     Status     `json:"status" cbor:"status"`
	CreatorID  string     `json:"creatorId" cbor:"creator_id"`
	MaxPlayers int        `json:"maxPlayers" cbor:"max_players"`
	PlayerIDs  []string   `json:"players" cbor:"players"`
	CallerID   string     `json:"callerId,omitempty" cbor:"caller_id,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" cbor:"created_at"`
	StartedAt  *time.Time `json:"startedAt,omitempty" cbor:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" cbor:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt" cbor:"updated_at"`

	CalledNumbers []int `json:"calledNumbers" cbor:"-"`
	CurrentNumber *int  `json:"currentNumber,omitempty" cbor:"-"`
}

// HasPlayer reports whether playerID joined the session.
func (s *Session) HasPlayer(playerID string) bool {
	return slices.Contains(s.PlayerIDs, playerID)
}

func (s *Session) setCalled(called []int) {
	s.CalledNumbers = called
	s.CurrentNumber = nil
	if n := len(called); n > 0 {
		last := called[n-1]
		s.CurrentNumber = &last
	}
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (s *Session) Snapshot() Session {
	out := *s
	out.PlayerIDs = slices.Clone(s.PlayerIDs)
	out.CalledNumbers = slices.Clone(s.CalledNumbers)
	if out.CalledNumbers == nil {
		out.CalledNumbers = []int{}
	}
	if s.CurrentNumber != nil {
		n := *s.CurrentNumber
		out.CurrentNumber = &n
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// nextCaller picks the earliest-joined player that is connected and is not
// excluded. It returns "" when nobody qualifies.
func nextCaller(joinOrder, connected []string, exclude string) string {
	live := make(map[string]struct{}, len(connected))
	for _, id := range connected {
		live[id] = struct{}{}
	}
	for _, id := range joinOrder {
		if id == exclude {
			continue
		}
		if _, ok := live[id]; ok {
			return id
		}
	}
	return ""
}
