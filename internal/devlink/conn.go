// Package devlink owns the persistent socket to each vending unit: session
// authentication, the device registry, liveness, and command delivery.
package devlink

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
)

// FrameProcessor handles raw frames read from a device socket.
type FrameProcessor interface {
	Process(ctx context.Context, conn *Conn, raw []byte) ([]byte, error)
}

// Conn wraps one device websocket. The device number is bound once the AU
// frame verifies; until then the connection is anonymous and only AU frames
// are accepted.
type Conn struct {
	ws           *websocket.Conn
	send         chan []byte
	processor    FrameProcessor
	writeTimeout time.Duration
	logger       *zap.Logger
	onClose      func(c *Conn)

	writeMu sync.Mutex

	mu       sync.RWMutex
	deviceNo string
}

// NewConn builds a connection wrapper.
func NewConn(ws *websocket.Conn, processor FrameProcessor, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Conn)) *Conn {
	return &Conn{
		ws:           ws,
		send:         make(chan []byte, 16),
		processor:    processor,
		writeTimeout: writeTimeout,
		logger:       logger,
		onClose:      onClose,
	}
}

// Bind records the authenticated device number.
func (c *Conn) Bind(deviceNo string) {
	c.mu.Lock()
	c.deviceNo = deviceNo
	c.mu.Unlock()
}

// DeviceNo returns the bound device number, empty until authenticated.
func (c *Conn) DeviceNo() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceNo
}

// Start launches the write pump and runs the read loop until the socket
// drops.
func (c *Conn) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readLoop(ctx)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(64 * 1024)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("device socket closed",
				zap.String("device_no", c.DeviceNo()), zap.Error(err))
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))

		resp, err := c.processor.Process(ctx, c, raw)
		if resp != nil {
			c.Enqueue(resp)
		}
		if err != nil {
			c.logger.Warn("device frame rejected",
				zap.String("device_no", c.DeviceNo()), zap.Error(err))
			if c.DeviceNo() == "" {
				// Unauthenticated peers get exactly one chance.
				return
			}
		}
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// Enqueue queues a frame for the write pump; full buffers drop the frame.
func (c *Conn) Enqueue(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("send on closed device connection",
				zap.String("device_no", c.DeviceNo()))
		}
	}()
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping outgoing frame, buffer full",
			zap.String("device_no", c.DeviceNo()))
	}
}

// SendCommand writes a command synchronously so a transport failure is
// visible to the caller, who must roll back the reservation it just made.
func (c *Conn) SendCommand(cmd protocol.Command) error {
	raw, err := cmd.Encode()
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, raw)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// Close tears the socket down.
func (c *Conn) Close() {
	_ = c.ws.Close()
}

func (c *Conn) cleanup() {
	close(c.send)
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}
