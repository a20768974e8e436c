// Package history stores finished games and player statistics in a
// relational database through gorm.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bingo/internal/session"
)

var ErrPlayerNotFound = errors.New("player not found")

// Open connects to the database with the named driver ("postgres" or
// "sqlite") and migrates the schema.
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&Player{}, &Game{}, &Participant{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// GormSink records finished games and applies rating changes in one
// transaction.
type GormSink struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewGormSink(db *gorm.DB, log *zap.Logger) *GormSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &GormSink{db: db, log: log.Named("history")}
}

// RecordFinishedGame stores rec and updates every participant. A session
// already recorded is ignored, so a retried flush does not double count.
func (s *GormSink) RecordFinishedGame(ctx context.Context, rec session.GameRecord) error {
	ids := make([]string, 0, len(rec.Deltas))
	for _, d := range rec.Deltas {
		ids = append(ids, d.PlayerID)
	}
	players, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Game{}).Where("session_id = ?", rec.SessionID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			s.log.Info("game already recorded", zap.String("session", rec.SessionID))
			return nil
		}

		game := Game{
			SessionID:       rec.SessionID,
			WinnerID:        rec.WinnerID,
			DurationSeconds: int64(rec.Duration.Seconds()),
			PlayerCount:     rec.PlayerCount,
			PlayerIDs:       players,
			StartedAt:       rec.StartedAt,
			FinishedAt:      rec.FinishedAt,
		}
		if err := tx.Create(&game).Error; err != nil {
			return err
		}

		for _, d := range rec.Deltas {
			if err := applyDelta(tx, d); err != nil {
				return fmt.Errorf("player %s: %w", d.PlayerID, err)
			}
			if err := tx.Create(&Participant{GameID: game.ID, PlayerID: d.PlayerID, Won: d.Won}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record game %s: %w", rec.SessionID, err)
	}
	return nil
}

func applyDelta(tx *gorm.DB, d session.StatDelta) error {
	seed := Player{ID: d.PlayerID, Rating: DefaultRating}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return err
	}
	var p Player
	if err := tx.First(&p, "id = ?", d.PlayerID).Error; err != nil {
		return err
	}

	p.GamesPlayed++
	if d.Won {
		p.GamesWon++
	}
	p.Rating += d.RatingDelta
	if d.RatingDelta < 0 && p.Rating < session.RatingFloor {
		p.Rating = session.RatingFloor
	}
	return tx.Model(&p).Select("rating", "games_played", "games_won").Updates(&p).Error
}

// History returns the most recent games of a player, newest first.
func (s *GormSink) History(ctx context.Context, playerID string, limit int) ([]Game, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var games []Game
	err := s.db.WithContext(ctx).
		Joins("JOIN participants ON participants.game_id = games.id").
		Where("participants.player_id = ?", playerID).
		Order("games.finished_at DESC").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", playerID, err)
	}
	return games, nil
}

// Player returns the statistics of one player.
func (s *GormSink) Player(ctx context.Context, playerID string) (Player, error) {
	var p Player
	err := s.db.WithContext(ctx).First(&p, "id = ?", playerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Player{}, ErrPlayerNotFound
	}
	return p, err
}

// Ping checks the database connection.
func (s *GormSink) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
