package session

import (
	"context"

	"bingo/internal/network"
	"bingo/internal/session/message"
)

// Broadcaster delivers frames to live connections. *network.Hub satisfies it.
type Broadcaster interface {
	Broadcast(sessionID string, msg network.Message)
	SendTo(sessionID, playerID string, msg network.Message) bool
	CloseSession(sessionID string, code int, reason string)
}

// HubFanout turns committed events into socket frames. Card updates go to
// their owner only; everything else goes to the whole session.
type HubFanout struct {
	hub Broadcaster
}

func NewHubFanout(hub Broadcaster) *HubFanout {
	return &HubFanout{hub: hub}
}

func (f *HubFanout) HandleEvent(_ context.Context, ev Event) {
	switch e := ev.(type) {
	case StateChanged:
		f.hub.Broadcast(e.State.ID, message.GameState(e.State))
	case NumberDrawn:
		f.hub.Broadcast(e.SessionID, message.NewNumber(e.Number))
	case CardUpdated:
		f.hub.SendTo(e.SessionID, e.PlayerID, message.CardUpdated(e.Card))
	case GameOver:
		f.hub.Broadcast(e.SessionID, message.GameOver(e.WinnerID))
	case PlayerDisconnected:
		f.hub.Broadcast(e.SessionID, message.PlayerDisconnected(e.PlayerID))
	case SessionTerminated:
		f.hub.Broadcast(e.SessionID, message.SessionTerminated(e.Reason))
		f.hub.CloseSession(e.SessionID, network.CloseNormal, e.Reason)
	}
}
