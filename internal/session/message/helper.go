package message

import (
	"fmt"

	"bingo/internal/network"
)

// Sender is anything that can queue a frame for one player.
type Sender interface {
	Send(msg network.Message) bool
}

// SendError queues an error frame for one player.
func SendError(s Sender, format string, args ...any) bool {
	return s.Send(Error(fmt.Sprintf(format, args...)))
}
