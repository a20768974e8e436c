package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bingo/internal/clock"
	"bingo/internal/codec"
	"bingo/internal/game/card"
	"bingo/internal/game/draw"
	"bingo/internal/store"
)

// Options wires a Coordinator. Store, Cards and Drawer are required.
type Options struct {
	Store       store.SessionStore
	Cards       *card.Factory
	Drawer      *draw.Drawer
	History     HistorySink
	Presence    Presence
	Subscribers []Subscriber
	Clock       clock.Clock
	TTL         time.Duration
	Logger      *zap.Logger
	NewID       func() string
}

// Coordinator applies session operations against the store. Every
// operation on a session runs inside that session's actor, so each
// read-decide-write sequence is atomic with respect to the others.
type Coordinator struct {
	store       store.SessionStore
	cards       *card.Factory
	drawer      *draw.Drawer
	history     HistorySink
	presence    Presence
	subscribers []Subscriber
	clock       clock.Clock
	ttl         time.Duration
	log         *zap.Logger
	newID       func() string

	mu     sync.Mutex
	actors map[string]*actor
}

func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		store:       opts.Store,
		cards:       opts.Cards,
		drawer:      opts.Drawer,
		history:     opts.History,
		presence:    opts.Presence,
		subscribers: opts.Subscribers,
		clock:       opts.Clock,
		ttl:         opts.TTL,
		log:         opts.Logger,
		newID:       opts.NewID,
		actors:      make(map[string]*actor),
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.ttl <= 0 {
		c.ttl = store.DefaultTTL
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("coordinator")
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Subscribe registers s for every event committed from now on. It is meant
// for startup wiring, before sessions exist.
func (c *Coordinator) Subscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, s)
}

// ---- Operations ----

// Create opens a new session in Waiting with the creator as its only player
// and caller. The creator's card is generated right away.
func (c *Coordinator) Create(ctx context.Context, creatorID string, maxPlayers int) (Session, error) {
	if creatorID == "" {
		return Session{}, withReason(ErrInvalidArgument, "creator is required")
	}
	if maxPlayers < MinPlayers || maxPlayers > MaxPlayers {
		return Session{}, withReason(ErrInvalidArgument, "maxPlayers must be between %d and %d", MinPlayers, MaxPlayers)
	}

	id := c.newID()
	var snap Session
	err := c.do(ctx, id, func(ctx context.Context) error {
		now := c.clock.Now()
		s := &Session{
			ID:         id,
			Status:     StatusWaiting,
			CreatorID:  creatorID,
			MaxPlayers: maxPlayers,
			PlayerIDs:  []string{creatorID},
			CallerID:   creatorID,
			CreatedAt:  now,
		}
		s.setCalled(nil)

		cd, err := c.seat(ctx, s, creatorID)
		if err != nil {
			return err
		}
		if err := c.store.AddWaiting(ctx, id); err != nil {
			c.discard(ctx, id)
			return err
		}
		snap = s.Snapshot()
		c.emit(ctx, StateChanged{State: snap}, CardUpdated{SessionID: id, PlayerID: creatorID, Card: cd})
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	c.log.Info("session created",
		zap.String("session", id), zap.String("creator", creatorID), zap.Int("max_players", maxPlayers))
	return snap, nil
}

// Join adds playerID to a Waiting session and deals their card.
func (c *Coordinator) Join(ctx context.Context, id, playerID string) (Session, error) {
	if playerID == "" {
		return Session{}, withReason(ErrInvalidArgument, "player is required")
	}
	var snap Session
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		if s.Status != StatusWaiting {
			return conflict(reasonAlreadyStarted)
		}
		if s.HasPlayer(playerID) {
			return conflict(reasonAlreadyInGame)
		}
		if len(s.PlayerIDs) >= s.MaxPlayers {
			return conflict(reasonFull)
		}

		s.PlayerIDs = append(s.PlayerIDs, playerID)
		if s.CallerID == "" {
			s.CallerID = playerID
		}
		cd, err := c.seat(ctx, s, playerID)
		if err != nil {
			return err
		}
		snap = s.Snapshot()
		c.emit(ctx, StateChanged{State: snap}, CardUpdated{SessionID: id, PlayerID: playerID, Card: cd})
		return nil
	})
	return snap, c.logged("join", id, playerID, err)
}

// Start moves a Waiting session with enough players to Active. Only a
// member may start it.
func (c *Coordinator) Start(ctx context.Context, id, requester string) (Session, error) {
	var snap Session
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		if !s.HasPlayer(requester) {
			return withReason(ErrAuthorityViolation, "only players of this session can start it")
		}
		if s.Status != StatusWaiting {
			return conflict(reasonAlreadyStarted)
		}
		if len(s.PlayerIDs) < MinPlayers {
			return conflict(reasonTooFewPlayers)
		}
		now := c.clock.Now()
		s.Status = StatusActive
		s.StartedAt = &now
		if err := c.save(ctx, s); err != nil {
			return err
		}
		if err := c.store.RemoveWaiting(ctx, id); err != nil {
			c.log.Warn("waiting index not cleared", zap.String("session", id), zap.Error(err))
		}
		snap = s.Snapshot()
		c.emit(ctx, StateChanged{State: snap})
		return nil
	})
	return snap, c.logged("start", id, requester, err)
}

// RequestDraw draws the next number. Only the current caller may draw. The
// session is saved before the number is appended, so a failed save leaves
// the called list untouched.
func (c *Coordinator) RequestDraw(ctx context.Context, id, requester string) (int, error) {
	var number int
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		if s.Status != StatusActive {
			return conflict(reasonNotActive)
		}
		if requester == "" || requester != s.CallerID {
			return withReason(ErrAuthorityViolation, "only the caller can request numbers")
		}
		n, err := c.drawer.Draw(s.CalledNumbers)
		if err != nil {
			return err
		}
		if err := c.save(ctx, s); err != nil {
			return err
		}
		if err := c.store.AppendCalledNumber(ctx, id, n); err != nil {
			return err
		}
		s.setCalled(append(s.CalledNumbers, n))
		number = n
		c.emit(ctx, NumberDrawn{SessionID: id, Number: n, Sequence: len(s.CalledNumbers)})
		return nil
	})
	return number, c.logged("draw", id, requester, err)
}

// Mark flags number on the player's card if it has been called. It reports
// whether the card changed; marking an absent or uncalled number is not an
// error.
func (c *Coordinator) Mark(ctx context.Context, id, playerID string, number int) (bool, error) {
	changed := false
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		if s.Status != StatusActive {
			return conflict(reasonNotActive)
		}
		cd, err := c.loadCard(ctx, id, playerID)
		if err != nil {
			return err
		}
		if !cd.Mark(number, s.CalledNumbers) {
			return nil
		}
		if err := c.putCard(ctx, cd); err != nil {
			return err
		}
		if err := c.save(ctx, s); err != nil {
			return err
		}
		changed = true
		c.emit(ctx, CardUpdated{SessionID: id, PlayerID: playerID, Card: cd})
		return nil
	})
	return changed, c.logged("mark", id, playerID, err)
}

// ClaimVictory validates playerID's card against the called numbers. On
// success the session finishes, the game is recorded and the session is
// purged from the store. If recording fails the session stays Finished in
// the store until its TTL runs out and the error is returned.
func (c *Coordinator) ClaimVictory(ctx context.Context, id, playerID string) error {
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		if s.Status != StatusActive {
			return conflict(reasonNotActive)
		}
		cd, err := c.loadCard(ctx, id, playerID)
		if err != nil {
			return err
		}
		if !card.Validate(cd, s.CalledNumbers) {
			return ErrInvalidClaim
		}

		now := c.clock.Now()
		s.Status = StatusFinished
		s.FinishedAt = &now
		if err := c.save(ctx, s); err != nil {
			return err
		}

		rec := GameRecord{
			SessionID:   id,
			WinnerID:    playerID,
			FinishedAt:  now,
			PlayerCount: len(s.PlayerIDs),
			Deltas:      statDeltas(s.PlayerIDs, playerID),
		}
		if s.StartedAt != nil {
			rec.StartedAt = *s.StartedAt
			rec.Duration = now.Sub(*s.StartedAt)
		}
		c.emit(ctx, GameOver{SessionID: id, WinnerID: playerID, Duration: rec.Duration, Players: rec.PlayerCount})

		if c.history != nil {
			if err := c.history.RecordFinishedGame(ctx, rec); err != nil {
				c.log.Error("history flush failed, session kept until expiry",
					zap.String("session", id), zap.Error(err))
				return fmt.Errorf("record finished game: %w", err)
			}
		}
		return c.store.Purge(ctx, id)
	})
	if err == nil {
		c.log.Info("session finished", zap.String("session", id), zap.String("winner", playerID))
	}
	return c.logged("claim", id, playerID, err)
}

// Disconnect handles the loss of a player's connection. If the player was
// the caller, authority passes to the earliest-joined player still
// connected, or to nobody.
func (c *Coordinator) Disconnect(ctx context.Context, id, playerID string) error {
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !s.HasPlayer(playerID) {
			return nil
		}
		c.emit(ctx, PlayerDisconnected{SessionID: id, PlayerID: playerID})
		if s.Status.Terminal() || s.CallerID != playerID {
			return nil
		}

		var connected []string
		if c.presence != nil {
			connected = c.presence.Connected(id)
		}
		s.CallerID = nextCaller(s.PlayerIDs, connected, playerID)
		if err := c.save(ctx, s); err != nil {
			return err
		}
		c.log.Debug("caller reassigned",
			zap.String("session", id), zap.String("from", playerID), zap.String("to", s.CallerID))
		c.emit(ctx, StateChanged{State: s.Snapshot()})
		return nil
	})
	return c.logged("disconnect", id, playerID, err)
}

// Attach is called when a connection for playerID is registered. It returns
// the current view and, for a member, their card. A member reconnecting to
// a session without a caller becomes the caller.
//
// deliver, if set, receives the same view and card inside the session's
// actor, before any later event is published. Connections use it to send
// their initial state ahead of concurrent updates.
func (c *Coordinator) Attach(ctx context.Context, id, playerID string, deliver func(Session, *card.Card)) (Session, *card.Card, error) {
	var (
		snap Session
		cd   *card.Card
	)
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		if s.HasPlayer(playerID) {
			cd, err = c.loadCard(ctx, id, playerID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if !s.Status.Terminal() && s.CallerID == "" {
				s.CallerID = playerID
				if err := c.save(ctx, s); err != nil {
					return err
				}
				c.emit(ctx, StateChanged{State: s.Snapshot()})
			}
		}
		snap = s.Snapshot()
		if deliver != nil {
			deliver(snap, cd)
		}
		return nil
	})
	return snap, cd, err
}

// Snapshot returns the current view of a session.
func (c *Coordinator) Snapshot(ctx context.Context, id string) (Session, error) {
	var snap Session
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		snap = s.Snapshot()
		return nil
	})
	return snap, err
}

// Card returns a player's card.
func (c *Coordinator) Card(ctx context.Context, id, playerID string) (*card.Card, error) {
	var cd *card.Card
	err := c.do(ctx, id, func(ctx context.Context) error {
		var err error
		cd, err = c.loadCard(ctx, id, playerID)
		return err
	})
	return cd, err
}

// ListWaiting returns the sessions still open for joining, oldest first.
// Index entries whose session has expired or moved on are dropped.
func (c *Coordinator) ListWaiting(ctx context.Context) ([]Session, error) {
	ids, err := c.store.ListWaiting(ctx)
	if err != nil {
		return nil, err
	}
	waiting := make([]Session, 0, len(ids))
	for _, id := range ids {
		snap, err := c.Snapshot(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		case snap.Status == StatusWaiting:
			waiting = append(waiting, snap)
			continue
		}
		if err := c.store.RemoveWaiting(ctx, id); err != nil {
			c.log.Warn("stale waiting entry kept", zap.String("session", id), zap.Error(err))
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})
	return waiting, nil
}

// LastActivity returns the time of the session's last committed mutation.
// An external reaper uses it to find idle sessions.
func (c *Coordinator) LastActivity(ctx context.Context, id string) (time.Time, error) {
	var at time.Time
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		at = s.UpdatedAt
		return nil
	})
	return at, err
}

// Terminate cancels a Waiting or Active session and purges it.
func (c *Coordinator) Terminate(ctx context.Context, id, reason string) error {
	err := c.do(ctx, id, func(ctx context.Context) error {
		s, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		if s.Status.Terminal() {
			return conflict(reasonAlreadyOver)
		}
		now := c.clock.Now()
		s.Status = StatusCancelled
		s.FinishedAt = &now
		if err := c.save(ctx, s); err != nil {
			return err
		}
		c.emit(ctx, SessionTerminated{SessionID: id, Reason: reason})
		return c.store.Purge(ctx, id)
	})
	if err == nil {
		c.log.Info("session terminated", zap.String("session", id), zap.String("reason", reason))
	}
	return err
}

// ---- Store access (inside the actor only) ----

func (c *Coordinator) load(ctx context.Context, id string) (*Session, error) {
	blob, err := c.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := codec.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	called, err := c.store.ListCalledNumbers(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setCalled(called)
	return &s, nil
}

// save stamps UpdatedAt and writes the session, refreshing its TTL.
func (c *Coordinator) save(ctx context.Context, s *Session) error {
	s.UpdatedAt = c.clock.Now()
	blob, err := codec.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return c.store.PutSession(ctx, s.ID, blob, c.ttl)
}

func (c *Coordinator) loadCard(ctx context.Context, id, playerID string) (*card.Card, error) {
	blob, err := c.store.GetCard(ctx, id, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, withReason(ErrNotFound, "card not found")
	}
	if err != nil {
		return nil, err
	}
	var cd card.Card
	if err := codec.Unmarshal(blob, &cd); err != nil {
		return nil, fmt.Errorf("decode card %s/%s: %w", id, playerID, err)
	}
	return &cd, nil
}

func (c *Coordinator) putCard(ctx context.Context, cd *card.Card) error {
	blob, err := codec.Marshal(cd)
	if err != nil {
		return fmt.Errorf("encode card: %w", err)
	}
	return c.store.PutCard(ctx, cd.SessionID, cd.PlayerID, blob)
}

// seat deals playerID a card and commits s with them as a member. Membership
// is written first so the card key is always reachable from the member set;
// on failure both are undone.
func (c *Coordinator) seat(ctx context.Context, s *Session, playerID string) (*card.Card, error) {
	cd, err := c.cards.Generate()
	if err != nil {
		return nil, err
	}
	cd.SessionID, cd.PlayerID = s.ID, playerID
	if err := c.store.AddPlayer(ctx, s.ID, playerID); err != nil {
		return nil, err
	}
	err = c.putCard(ctx, cd)
	if err == nil {
		err = c.save(ctx, s)
	}
	if err != nil {
		c.unseat(ctx, s.ID, playerID)
		return nil, err
	}
	return cd, nil
}

func (c *Coordinator) unseat(ctx context.Context, id, playerID string) {
	if err := c.store.DeleteCard(ctx, id, playerID); err != nil {
		c.log.Warn("card not removed", zap.String("session", id), zap.String("player", playerID), zap.Error(err))
	}
	if err := c.store.RemovePlayer(ctx, id, playerID); err != nil {
		c.log.Warn("member not removed", zap.String("session", id), zap.String("player", playerID), zap.Error(err))
	}
}

// discard drops a session that could not be fully created.
func (c *Coordinator) discard(ctx context.Context, id string) {
	if err := c.store.Purge(ctx, id); err != nil {
		c.log.Warn("partial session not purged", zap.String("session", id), zap.Error(err))
	}
}

func (c *Coordinator) emit(ctx context.Context, events ...Event) {
	c.mu.Lock()
	subs := c.subscribers
	c.mu.Unlock()
	for _, ev := range events {
		for _, s := range subs {
			s.HandleEvent(ctx, ev)
		}
	}
}

// logged records a failed operation at a level matching its cause and
// returns err unchanged.
func (c *Coordinator) logged(op, id, playerID string, err error) error {
	if err == nil {
		return nil
	}
	fields := []zap.Field{zap.String("op", op), zap.String("session", id), zap.String("player", playerID), zap.Error(err)}
	switch {
	case IsClientError(err), errors.Is(err, ErrNotFound), errors.Is(err, context.Canceled):
		c.log.Debug("operation rejected", fields...)
	default:
		c.log.Error("operation failed", fields...)
	}
	return err
}
