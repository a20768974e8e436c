package network

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades session requests to websockets and runs their pumps.
type Server struct {
	hub      *Hub
	handler  EventHandler
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewServer(hub *Hub, handler EventHandler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		hub:     hub,
		handler: handler,
		upgrader: websocket.Upgrader{
			// Origin checks are left to the fronting proxy.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.Named("ws"),
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// ServeHTTP admits the request, upgrades it and starts the client pumps.
// Admission failures are reported as websocket close frames so browser
// clients can read the code.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, admitErr := s.handler.Admit(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	if admitErr != nil {
		code, reason := CloseGenericError, admitErr.Error()
		var ce *CloseError
		if errors.As(admitErr, &ce) {
			code, reason = ce.Code, ce.Reason
		}
		s.log.Debug("connection rejected", zap.Int("code", code), zap.String("reason", reason))
		payload := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	client := newClient(conn, s.hub, s.handler, id, s.log)
	s.hub.register(client)
	go client.writeLoop()
	s.handler.OnConnect(client)
	go client.readLoop()
}
