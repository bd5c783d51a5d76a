package devlink

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to device websockets.
type Server struct {
	manager      *Manager
	processor    FrameProcessor
	writeTimeout time.Duration
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// NewServer builds the upgrade handler.
func NewServer(manager *Manager, processor FrameProcessor, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		manager:      manager,
		processor:    processor,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for /device/ws. The session stays anonymous
// until its first frame authenticates.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := NewConn(ws, s.processor, s.writeTimeout, s.logger, func(c *Conn) {
		s.manager.Drop(context.Background(), c)
		cancel()
	})

	go conn.Start(ctx)
}
