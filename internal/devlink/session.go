package devlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
)

// authWindow bounds the clock skew accepted on AU frames.
const authWindow = 5 * time.Minute

var errAuthFailed = errors.New("devlink: authentication failed")

// DeviceStore is the persistence the session layer needs.
type DeviceStore interface {
	GetByNo(ctx context.Context, deviceNo string) (*models.Device, error)
	TouchHeartbeat(ctx context.Context, deviceNo string, at time.Time) error
	UpdateSnapshot(ctx context.Context, deviceNo string, tds, temperatureC int64, at time.Time) error
}

// Session processes inbound device frames: AU authenticates the socket
// against the device shared secret, HB refreshes liveness, ST uploads a
// sensor snapshot. Everything before a successful AU is rejected.
type Session struct {
	devices DeviceStore
	manager *Manager
	logger  *zap.Logger
}

// NewSession builds the frame processor shared by all device connections.
func NewSession(devices DeviceStore, manager *Manager, logger *zap.Logger) *Session {
	return &Session{devices: devices, manager: manager, logger: logger}
}

// Process implements FrameProcessor.
func (s *Session) Process(ctx context.Context, conn *Conn, raw []byte) ([]byte, error) {
	frame, err := protocol.ParseDeviceFrame(raw)
	if err != nil {
		return nil, err
	}

	if conn.DeviceNo() == "" && frame.Cmd != protocol.CmdAuth {
		return nil, fmt.Errorf("devlink: %s before authentication", frame.Cmd)
	}
	if bound := conn.DeviceNo(); bound != "" && frame.DeviceNo != bound {
		// A socket speaks for exactly one device. Anything else would let
		// an authenticated unit forge liveness for its neighbours.
		return nil, fmt.Errorf("devlink: frame for %s on session bound to %s", frame.DeviceNo, bound)
	}

	switch frame.Cmd {
	case protocol.CmdAuth:
		return s.handleAuth(ctx, conn, frame)
	case protocol.CmdHeartbeat:
		return s.handleHeartbeat(ctx, frame)
	case protocol.CmdStatus:
		return s.handleSnapshot(ctx, frame)
	default:
		return nil, fmt.Errorf("devlink: unsupported frame %s", frame.Cmd)
	}
}

func (s *Session) handleAuth(ctx context.Context, conn *Conn, frame *protocol.DeviceFrame) ([]byte, error) {
	if conn.DeviceNo() != "" {
		// Re-auth on a live session is a refresh, not an error.
		s.manager.Heartbeat(ctx, conn.DeviceNo())
		return protocol.EncodeAck(protocol.CmdAuth, true), nil
	}

	device, err := s.devices.GetByNo(ctx, frame.DeviceNo)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return protocol.EncodeAck(protocol.CmdAuth, false), errAuthFailed
		}
		return nil, err
	}

	issued := time.Unix(frame.TS, 0)
	skew := time.Since(issued)
	if skew < 0 {
		skew = -skew
	}
	if skew > authWindow || !protocol.VerifyAuth(frame, device.Secret) {
		return protocol.EncodeAck(protocol.CmdAuth, false), errAuthFailed
	}

	conn.Bind(device.DeviceNo)
	s.manager.Register(ctx, conn)
	if err := s.devices.TouchHeartbeat(ctx, device.DeviceNo, time.Now().UTC()); err != nil {
		s.logger.Warn("heartbeat persist failed",
			zap.String("device_no", device.DeviceNo), zap.Error(err))
	}
	return protocol.EncodeAck(protocol.CmdAuth, true), nil
}

func (s *Session) handleHeartbeat(ctx context.Context, frame *protocol.DeviceFrame) ([]byte, error) {
	s.manager.Heartbeat(ctx, frame.DeviceNo)
	if err := s.devices.TouchHeartbeat(ctx, frame.DeviceNo, time.Now().UTC()); err != nil {
		s.logger.Warn("heartbeat persist failed",
			zap.String("device_no", frame.DeviceNo), zap.Error(err))
	}
	return protocol.EncodeAck(protocol.CmdHeartbeat, true), nil
}

func (s *Session) handleSnapshot(ctx context.Context, frame *protocol.DeviceFrame) ([]byte, error) {
	s.manager.Heartbeat(ctx, frame.DeviceNo)
	if err := s.devices.UpdateSnapshot(ctx, frame.DeviceNo, frame.TDS, frame.TempC, time.Now().UTC()); err != nil {
		return nil, err
	}
	return protocol.EncodeAck(protocol.CmdStatus, true), nil
}
