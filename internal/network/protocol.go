package network

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope for every frame exchanged over a session socket,
// in both directions. Type selects the handler; the remaining fields are
// filled according to the type and omitted otherwise.
type Message struct {
	Type     string          `json:"type"`
	Number   *int            `json:"number,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Card     json.RawMessage `json:"card,omitempty"`
	WinnerID string          `json:"winnerId,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
	Message  string          `json:"message,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// MaxMessageSize bounds inbound frames. Client commands are tiny.
const MaxMessageSize = 4 * 1024

// Close codes sent when the server ends a session socket.
const (
	CloseNormal          = 1000
	CloseGenericError    = 4000
	CloseSessionNotFound = 4004
)

// CloseError asks the server to end a connection with a specific close code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close %d: %s", e.Code, e.Reason)
}
