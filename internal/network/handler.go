package network

import "net/http"

// Identity names the session and player a connection belongs to.
type Identity struct {
	SessionID string
	PlayerID  string
}

// EventHandler connects the socket layer to the game logic.
type EventHandler interface {
	// Admit authenticates the upgrade request and resolves its session. A
	// returned *CloseError picks the close code; any other error closes with
	// CloseGenericError.
	Admit(r *http.Request) (Identity, error)

	// OnConnect is called once the client is registered in the hub.
	OnConnect(c *Client)

	// OnDisconnect is called when the client's read loop ends, unless the
	// client was replaced by a newer connection for the same player.
	OnDisconnect(c *Client)

	// OnMessage is called from the client's own read loop.
	OnMessage(c *Client, msg Message)
}
