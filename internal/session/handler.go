package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bingo/internal/auth"
	"bingo/internal/game/card"
	"bingo/internal/network"
	"bingo/internal/session/message"
)

// CommandHandlerFunc handles one inbound message type for a connection.
type CommandHandlerFunc func(ctx context.Context, h *GameHandler, c *network.Client, msg network.Message) error

// GameHandler implements network.EventHandler on top of a Coordinator.
type GameHandler struct {
	coord   *Coordinator
	auth    auth.Authenticator
	log     *zap.Logger
	timeout time.Duration

	router map[string]CommandHandlerFunc
}

func NewGameHandler(coord *Coordinator, authn auth.Authenticator, log *zap.Logger) *GameHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &GameHandler{
		coord:   coord,
		auth:    authn,
		log:     log.Named("handler"),
		timeout: 10 * time.Second,
		router:  make(map[string]CommandHandlerFunc),
	}
	h.registerHandlers()
	return h
}

func (h *GameHandler) registerHandlers() {
	h.router[message.TypeJoin] = handleJoin
	h.router[message.TypeReady] = handleReady
	h.router[message.TypeRequestNumber] = handleRequestNumber
	h.router[message.TypeMarkNumber] = handleMarkNumber
	h.router[message.TypeClaimVictory] = handleClaimVictory
}

// --- network.EventHandler ---

// Admit authenticates the token and checks the session exists. The session
// id comes from the {id} route parameter or the session query parameter.
func (h *GameHandler) Admit(r *http.Request) (network.Identity, error) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session")
	}
	if sessionID == "" {
		return network.Identity{}, &network.CloseError{Code: network.CloseGenericError, Reason: "session id required"}
	}

	playerID, err := h.auth.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		h.log.Debug("connection unauthorized", zap.String("session", sessionID), zap.Error(err))
		return network.Identity{}, &network.CloseError{Code: network.CloseGenericError, Reason: "unauthorized"}
	}

	if _, err := h.coord.Snapshot(r.Context(), sessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return network.Identity{}, &network.CloseError{Code: network.CloseSessionNotFound, Reason: "session not found"}
		}
		return network.Identity{}, &network.CloseError{Code: network.CloseGenericError, Reason: Reason(err)}
	}
	return network.Identity{SessionID: sessionID, PlayerID: playerID}, nil
}

// OnConnect sends the current view, and the player's card if they have one,
// to the new connection only. Both are queued from inside the session's
// actor so no later broadcast can overtake them.
func (h *GameHandler) OnConnect(c *network.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	_, _, err := h.coord.Attach(ctx, c.SessionID(), c.PlayerID(), func(snap Session, cd *card.Card) {
		c.Send(message.GameState(snap))
		if cd != nil {
			c.Send(message.CardUpdated(cd))
		}
	})
	if err != nil {
		h.respond(c, err)
		return
	}
	h.log.Debug("player connected", zap.String("session", c.SessionID()), zap.String("player", c.PlayerID()))
}

func (h *GameHandler) OnDisconnect(c *network.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.coord.Disconnect(ctx, c.SessionID(), c.PlayerID()); err != nil {
		h.log.Warn("disconnect not applied",
			zap.String("session", c.SessionID()), zap.String("player", c.PlayerID()), zap.Error(err))
	}
}

// OnMessage routes one inbound frame. It runs on the connection's own read
// loop, so a slow operation only stalls that player.
func (h *GameHandler) OnMessage(c *network.Client, msg network.Message) {
	var err error
	switch handler, found := h.router[msg.Type]; {
	case msg.Type == "":
		err = withReason(ErrValidation, "malformed message")
	case !found:
		err = withReason(ErrValidation, "unknown message type %q", msg.Type)
	default:
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err = handler(ctx, h, c, msg)
		cancel()
	}
	h.respond(c, err)
}

// respond reports a failed command to the sender. A missing session closes
// the connection with 4004.
func (h *GameHandler) respond(c *network.Client, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		message.SendError(c, "%s", Reason(err))
		c.Close(network.CloseSessionNotFound, Reason(err))
	case IsClientError(err):
		message.SendError(c, "%s", Reason(err))
	default:
		h.log.Error("command failed",
			zap.String("session", c.SessionID()), zap.String("player", c.PlayerID()), zap.Error(err))
		message.SendError(c, "%s", Reason(err))
	}
}

// --- Commands ---

func handleJoin(ctx context.Context, h *GameHandler, c *network.Client, _ network.Message) error {
	_, err := h.coord.Join(ctx, c.SessionID(), c.PlayerID())
	return err
}

func handleReady(ctx context.Context, h *GameHandler, c *network.Client, _ network.Message) error {
	_, err := h.coord.Start(ctx, c.SessionID(), c.PlayerID())
	return err
}

func handleRequestNumber(ctx context.Context, h *GameHandler, c *network.Client, _ network.Message) error {
	_, err := h.coord.RequestDraw(ctx, c.SessionID(), c.PlayerID())
	return err
}

func handleMarkNumber(ctx context.Context, h *GameHandler, c *network.Client, msg network.Message) error {
	if msg.Number == nil {
		return withReason(ErrValidation, "mark_number requires a number")
	}
	n := *msg.Number
	if n < card.MinNumber || n > card.MaxNumber {
		return withReason(ErrValidation, "number must be between %d and %d", card.MinNumber, card.MaxNumber)
	}
	_, err := h.coord.Mark(ctx, c.SessionID(), c.PlayerID(), n)
	return err
}

func handleClaimVictory(ctx context.Context, h *GameHandler, c *network.Client, _ network.Message) error {
	return h.coord.ClaimVictory(ctx, c.SessionID(), c.PlayerID())
}
