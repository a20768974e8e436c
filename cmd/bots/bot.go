package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bingo/internal/game/card"
	"bingo/internal/network"
	"bingo/internal/session"
	"bingo/internal/session/message"
)

type gameConfig struct {
	Server       string
	Players      int
	DrawInterval time.Duration
}

// playGame runs one game to completion and returns the winner.
func playGame(ctx context.Context, cfg gameConfig, name string, log *zap.Logger) (string, error) {
	if cfg.Players < session.MinPlayers || cfg.Players > session.MaxPlayers {
		return "", fmt.Errorf("players must be between %d and %d", session.MinPlayers, session.MaxPlayers)
	}
	log = log.With(zap.String("game", name))

	ids := make([]string, cfg.Players)
	for i := range ids {
		ids[i] = fmt.Sprintf("bot-%s-%d", name, i)
	}

	sessionID, err := createSession(ctx, cfg.Server, ids[0], cfg.Players)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	log = log.With(zap.String("session", sessionID))

	results := make(chan string, cfg.Players)
	bots := make([]*bot, 0, cfg.Players)
	defer func() {
		for _, b := range bots {
			b.close()
		}
	}()

	for i, id := range ids {
		conn, err := dial(ctx, cfg.Server, sessionID, id)
		if err != nil {
			return "", fmt.Errorf("%s: %w", id, err)
		}
		b := &bot{
			id:       id,
			conn:     conn,
			host:     i == 0,
			expected: cfg.Players,
			log:      log.With(zap.String("bot", id)),
			results:  results,
		}
		bots = append(bots, b)
		go b.readLoop()
		if !b.host {
			if err := b.send(network.Message{Type: message.TypeJoin}); err != nil {
				return "", fmt.Errorf("%s join: %w", id, err)
			}
		}
	}

	ticker := time.NewTicker(cfg.DrawInterval)
	defer ticker.Stop()
	for {
		select {
		case winner := <-results:
			return winner, nil
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			for _, b := range bots {
				b.drawIfCaller()
			}
		}
	}
}

// bot is one scripted player. Its state is fed by the read loop.
type bot struct {
	id       string
	conn     *websocket.Conn
	host     bool
	expected int
	log      *zap.Logger
	results  chan<- string

	wmu sync.Mutex

	mu      sync.Mutex
	state   session.Session
	card    *card.Card
	called  []int
	ready   bool
	claimed bool
}

func (b *bot) send(msg network.Message) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	b.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return b.conn.WriteJSON(msg)
}

func (b *bot) close() {
	b.wmu.Lock()
	b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	b.wmu.Unlock()
	b.conn.Close()
}

func (b *bot) readLoop() {
	for {
		var msg network.Message
		if err := b.conn.ReadJSON(&msg); err != nil {
			return
		}
		for _, out := range b.handle(msg) {
			if err := b.send(out); err != nil {
				b.log.Warn("send failed", zap.String("type", out.Type), zap.Error(err))
				return
			}
		}
	}
}

// handle updates the bot from one server message and returns the replies.
func (b *bot) handle(msg network.Message) []network.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch msg.Type {
	case message.TypeGameState:
		var s session.Session
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			b.log.Warn("bad game_state", zap.Error(err))
			return nil
		}
		b.state = s
		if len(s.CalledNumbers) > len(b.called) {
			b.called = s.CalledNumbers
		}
		if b.host && !b.ready && s.Status == session.StatusWaiting && len(s.PlayerIDs) == b.expected {
			b.ready = true
			return []network.Message{{Type: message.TypeReady}}
		}
	case message.TypeCardUpdated:
		var c card.Card
		if err := json.Unmarshal(msg.Card, &c); err != nil {
			b.log.Warn("bad card", zap.Error(err))
			return nil
		}
		b.card = &c
		return b.claimIfComplete()
	case message.TypeNewNumber:
		if msg.Number == nil {
			return nil
		}
		n := *msg.Number
		b.called = append(b.called, n)
		var out []network.Message
		if b.card != nil && b.card.Contains(n) {
			out = append(out, network.Message{Type: message.TypeMarkNumber, Number: &n})
		}
		return append(out, b.claimIfComplete()...)
	case message.TypeGameOver:
		select {
		case b.results <- msg.WinnerID:
		default:
		}
	case message.TypeError:
		b.log.Debug("server error", zap.String("message", msg.Message))
	}
	return nil
}

func (b *bot) claimIfComplete() []network.Message {
	if b.claimed || b.card == nil || !card.Validate(b.card, b.called) {
		return nil
	}
	b.claimed = true
	return []network.Message{{Type: message.TypeClaimVictory}}
}

func (b *bot) drawIfCaller() {
	b.mu.Lock()
	draw := b.state.Status == session.StatusActive && b.state.CallerID == b.id && !b.claimed
	b.mu.Unlock()
	if !draw {
		return
	}
	if err := b.send(network.Message{Type: message.TypeRequestNumber}); err != nil {
		b.log.Warn("draw failed", zap.Error(err))
	}
}

func createSession(ctx context.Context, host, token string, maxPlayers int) (string, error) {
	body, _ := json.Marshal(map[string]int{"maxPlayers": maxPlayers})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+host+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %s", resp.Status)
	}
	var s session.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return "", err
	}
	if s.ID == "" {
		return "", errors.New("empty session id")
	}
	return s.ID, nil
}

func dial(ctx context.Context, host, sessionID, token string) (*websocket.Conn, error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     host,
		Path:     "/sessions/" + url.PathEscape(sessionID) + "/ws",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}
