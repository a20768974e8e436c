package history

import (
	"time"

	"gorm.io/datatypes"
)

const DefaultRating = 1000

// Player holds the durable statistics of one player.
type Player struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Rating      int       `gorm:"not null;default:1000" json:"rating"`
	GamesPlayed int       `gorm:"not null;default:0" json:"gamesPlayed"`
	GamesWon    int       `gorm:"not null;default:0" json:"gamesWon"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Game is one finished session.
type Game struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	SessionID       string         `gorm:"uniqueIndex;not null" json:"sessionId"`
	WinnerID        string         `gorm:"index;not null" json:"winnerId"`
	DurationSeconds int64          `json:"durationSeconds"`
	PlayerCount     int            `json:"playerCount"`
	PlayerIDs       datatypes.JSON `json:"playerIds"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `gorm:"index" json:"finishedAt"`
	CreatedAt       time.Time      `json:"-"`
}

// Participant links a player to a game they played.
type Participant struct {
	GameID   uint   `gorm:"primaryKey"`
	PlayerID string `gorm:"primaryKey;index"`
	Won      bool
}
