// Package message builds the frames exchanged with players over a session
// socket.
package message

import (
	"encoding/json"

	"bingo/internal/network"
)

// Inbound message types, sent by players.
const (
	TypeJoin          = "join"
	TypeReady         = "ready"
	TypeRequestNumber = "request_number"
	TypeMarkNumber    = "mark_number"
	TypeClaimVictory  = "claim_victory"
)

// Outbound message types, sent by the server.
const (
	TypeGameState          = "game_state"
	TypeNewNumber          = "new_number"
	TypeCardUpdated        = "card_updated"
	TypeGameOver           = "game_over"
	TypePlayerDisconnected = "player_disconnected"
	TypeSessionTerminated  = "session_terminated"
	TypeError              = "error"
)

// GameState carries a session snapshot in data.
func GameState(snapshot any) network.Message {
	data, _ := json.Marshal(snapshot)
	return network.Message{Type: TypeGameState, Data: data}
}

func NewNumber(n int) network.Message {
	return network.Message{Type: TypeNewNumber, Number: &n}
}

// CardUpdated carries the player's own card. It is never broadcast.
func CardUpdated(card any) network.Message {
	data, _ := json.Marshal(card)
	return network.Message{Type: TypeCardUpdated, Card: data}
}

func GameOver(winnerID string) network.Message {
	return network.Message{Type: TypeGameOver, WinnerID: winnerID}
}

func PlayerDisconnected(playerID string) network.Message {
	return network.Message{Type: TypePlayerDisconnected, PlayerID: playerID}
}

func SessionTerminated(reason string) network.Message {
	return network.Message{Type: TypeSessionTerminated, Reason: reason}
}

func Error(text string) network.Message {
	return network.Message{Type: TypeError, Message: text}
}
