// Package store holds ephemeral session state: the encoded session blob,
// the member set, the called-number list and one card per member. Every key
// of a session expires together and is removed by Purge.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a session or card key does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable wraps any I/O failure of the backing store.
	ErrUnavailable = errors.New("store: unavailable")
)

// DefaultTTL is the lifetime of a session's keys when none is configured.
const DefaultTTL = time.Hour

// SessionStore is the ephemeral key/value/set/list store consumed by the
// session coordinator. Implementations do not need compound atomicity; the
// coordinator serializes all writes for a given session.
type SessionStore interface {
	GetSession(ctx context.Context, id string) ([]byte, error)
	PutSession(ctx context.Context, id string, blob []byte, ttl time.Duration) error

	AddPlayer(ctx context.Context, id, playerID string) error
	RemovePlayer(ctx context.Context, id, playerID string) error
	ListPlayers(ctx context.Context, id string) ([]string, error)

	AppendCalledNumber(ctx context.Context, id string, number int) error
	ListCalledNumbers(ctx context.Context, id string) ([]int, error)

	GetCard(ctx context.Context, id, playerID string) ([]byte, error)
	PutCard(ctx context.Context, id, playerID string, blob []byte) error
	DeleteCard(ctx context.Context, id, playerID string) error

	// The waiting index lists sessions still open for joining. It carries
	// no TTL; readers drop ids whose session key has expired.
	AddWaiting(ctx context.Context, id string) error
	RemoveWaiting(ctx context.Context, id string) error
	ListWaiting(ctx context.Context) ([]string, error)

	Purge(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// ---- Key layout ----

func sessionKey(id string) string { return fmt.Sprintf("game:%s", id) }

func playersKey(id string) string { return fmt.Sprintf("game:%s:players", id) }

func calledKey(id string) string { return fmt.Sprintf("game:%s:called_numbers", id) }

func cardKey(id, playerID string) string {
	return fmt.Sprintf("game:%s:player:%s:card", id, playerID)
}

const waitingKey = "games:waiting"

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
