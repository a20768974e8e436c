// Package eventbus publishes committed session events on NATS so other
// services (notifications, achievements, analytics) can follow games
// without talking to the session server.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"bingo/internal/session"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher is a session.Subscriber that forwards events to NATS subjects
// of the form <prefix>.session.<id>.<type>. Card updates are private to
// their owner and are not published.
type Publisher struct {
	conn   Conn
	prefix string
	now    func() time.Time
	log    *zap.Logger
}

func NewPublisher(conn Conn, prefix string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "bingo"
	}
	return &Publisher{conn: conn, prefix: prefix, now: time.Now, log: log.Named("eventbus")}
}

// Subject returns the subject an event of kind for sessionID is published on.
func (p *Publisher) Subject(sessionID, kind string) string {
	return fmt.Sprintf("%s.session.%s.%s", p.prefix, sessionID, kind)
}

// HandleEvent publishes ev. NATS buffers publishes in the client, so this
// does not wait on the network. Failures are logged and dropped.
func (p *Publisher) HandleEvent(_ context.Context, ev session.Event) {
	if _, private := ev.(session.CardUpdated); private {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("encode event", zap.String("type", ev.Kind()), zap.Error(err))
		return
	}
	body, err := json.Marshal(Envelope{
		Type:      ev.Kind(),
		SessionID: ev.Session(),
		At:        p.now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		p.log.Error("encode envelope", zap.String("type", ev.Kind()), zap.Error(err))
		return
	}
	if err := p.conn.Publish(p.Subject(ev.Session(), ev.Kind()), body); err != nil {
		p.log.Warn("publish failed",
			zap.String("session", ev.Session()), zap.String("type", ev.Kind()), zap.Error(err))
	}
}

// Connect dials NATS with reconnects enabled and connection state logged.
func Connect(url, name string, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("nats")
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// Health reports whether conn is connected, in the form expected by the
// cluster health aggregator.
func Health(conn *nats.Conn) func() (bool, string) {
	return func() (bool, string) {
		if conn == nil {
			return false, "not configured"
		}
		if conn.IsConnected() {
			return true, "connected"
		}
		return false, conn.Status().String()
	}
}
