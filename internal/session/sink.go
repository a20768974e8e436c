package session

import (
	"context"
	"time"
)

// Rating adjustments applied when a game finishes.
const (
	WinnerRatingDelta = 25
	LoserRatingDelta  = -10
	RatingFloor       = 1000
)

// StatDelta is the change to one player's record. The sink applies
// RatingDelta and clamps the result at RatingFloor when the delta is
// negative.
type StatDelta struct {
	PlayerID    string
	RatingDelta int
	Won         bool
}

// GameRecord summarizes a finished game for durable storage.
type GameRecord struct {
	SessionID   string
	WinnerID    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	PlayerCount int
	Deltas      []StatDelta
}

// HistorySink persists finished games and player statistics.
type HistorySink interface {
	RecordFinishedGame(ctx context.Context, rec GameRecord) error
}

// Presence reports which players currently hold a live connection.
type Presence interface {
	Connected(sessionID string) []string
}

func statDeltas(players []string, winnerID string) []StatDelta {
	deltas := make([]StatDelta, 0, len(players))
	for _, id := range players {
		d := StatDelta{PlayerID: id, RatingDelta: LoserRatingDelta}
		if id == winnerID {
			d.RatingDelta, d.Won = WinnerRatingDelta, true
		}
		deltas = append(deltas, d)
	}
	return deltas
}
