// Package auth resolves bearer tokens to player ids. Token issuance lives
// in a separate identity service; this package only asks it who a token
// belongs to.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator maps a bearer token to a player id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (playerID string, err error)
}

// Remote verifies tokens against an identity service. The service answers
// GET <url> carrying the token as a bearer credential with 200 and
// {"id": "..."} for a valid token and 401 otherwise.
type Remote struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewRemote(url string, log *zap.Logger) *Remote {
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.Named("auth"),
	}
}

func (a *Remote) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrUnauthorized
	default:
		return "", fmt.Errorf("auth service returned %d", resp.StatusCode)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if body.ID == "" {
		return "", ErrUnauthorized
	}
	return body.ID, nil
}

// Trust accepts any non-empty token as the player id. Development only.
type Trust struct{}

func (Trust) Authenticate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the token query parameter used by browser websockets.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

type contextKey string

const playerIDKey contextKey = "playerId"

// Middleware authenticates every request and stores the player id in its
// context. Requests without a valid token get 401.
func Middleware(a Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			playerID, err := a.Authenticate(r.Context(), TokenFromRequest(r))
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					log.Warn("authentication failed", zap.Error(err))
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPlayerID(r.Context(), playerID)))
		})
	}
}

func WithPlayerID(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, playerIDKey, playerID)
}

// PlayerID returns the authenticated player stored by Middleware.
func PlayerID(ctx context.Context) string {
	id, _ := ctx.Value(playerIDKey).(string)
	return id
}
