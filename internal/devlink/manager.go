package devlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
)

// Link is the slice of a device connection the registry needs. *Conn
// implements it; tests substitute fakes.
type Link interface {
	DeviceNo() string
	SendCommand(cmd protocol.Command) error
	Close()
}

// StatusStore mirrors connectivity into the cluster-visible record.
type StatusStore interface {
	MarkOnline(ctx context.Context, deviceNo string) error
	MarkOffline(ctx context.Context, deviceNo string) error
}

// Manager is the process-wide device registry. It is the only component
// allowed to mutate it; everyone else goes through Register/Evict/Send/
// IsConnected.
type Manager struct {
	mu       sync.RWMutex
	links    map[string]Link
	lastSeen map[string]time.Time

	timeout time.Duration
	status  StatusStore
	logger  *zap.Logger
}

// NewManager builds the registry. timeout is the heartbeat staleness bound
// after which the watchdog evicts a device.
func NewManager(timeout time.Duration, status StatusStore, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Manager{
		links:    make(map[string]Link),
		lastSeen: make(map[string]time.Time),
		timeout:  timeout,
		status:   status,
		logger:   logger,
	}
}

// Register puts an authenticated connection into the registry, replacing any
// previous session of the same device.
func (m *Manager) Register(ctx context.Context, link Link) {
	deviceNo := link.DeviceNo()

	m.mu.Lock()
	previous := m.links[deviceNo]
	m.links[deviceNo] = link
	m.lastSeen[deviceNo] = time.Now()
	m.mu.Unlock()

	if previous != nil && previous != link {
		previous.Close()
	}
	if err := m.status.MarkOnline(ctx, deviceNo); err != nil {
		m.logger.Warn("status record update failed",
			zap.String("device_no", deviceNo), zap.Error(err))
	}
	m.logger.Info("device connected", zap.String("device_no", deviceNo))
}

// Heartbeat refreshes the device's liveness timestamp.
func (m *Manager) Heartbeat(ctx context.Context, deviceNo string) {
	m.mu.Lock()
	_, known := m.links[deviceNo]
	if known {
		m.lastSeen[deviceNo] = time.Now()
	}
	m.mu.Unlock()

	if !known {
		return
	}
	if err := m.status.MarkOnline(ctx, deviceNo); err != nil {
		m.logger.Warn("status record refresh failed",
			zap.String("device_no", deviceNo), zap.Error(err))
	}
}

// IsConnected reports whether this process holds a live connection.
func (m *Manager) IsConnected(deviceNo string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.links[deviceNo]
	return ok
}

// Send writes a command to the device's socket. It returns
// models.ErrDeviceOffline when no live connection exists and, on a write
// failure, evicts the device and returns models.ErrTransportFailure. It
// never waits for the physical result; that arrives later through ingestion.
func (m *Manager) Send(ctx context.Context, deviceNo string, cmd protocol.Command) error {
	m.mu.RLock()
	link, ok := m.links[deviceNo]
	m.mu.RUnlock()

	if !ok {
		return models.ErrDeviceOffline
	}
	if err := link.SendCommand(cmd); err != nil {
		m.logger.Warn("command write failed, evicting device",
			zap.String("device_no", deviceNo),
			zap.String("cmd", cmd.Cmd),
			zap.Error(err))
		m.Evict(ctx, deviceNo)
		return fmt.Errorf("%w: %v", models.ErrTransportFailure, err)
	}
	return nil
}

// Evict removes a device from the registry, closes its socket and clears
// the shared status record. Re-authentication is required to rejoin.
func (m *Manager) Evict(ctx context.Context, deviceNo string) {
	m.mu.Lock()
	link, ok := m.links[deviceNo]
	delete(m.links, deviceNo)
	delete(m.lastSeen, deviceNo)
	m.mu.Unlock()

	if !ok {
		return
	}
	link.Close()
	if err := m.status.MarkOffline(ctx, deviceNo); err != nil {
		m.logger.Warn("status record clear failed",
			zap.String("device_no", deviceNo), zap.Error(err))
	}
	m.logger.Info("device evicted", zap.String("device_no", deviceNo))
}

// Drop removes a link if it is still the registered one. Used by the
// connection close hook, where a newer session may already have replaced it.
func (m *Manager) Drop(ctx context.Context, link Link) {
	deviceNo := link.DeviceNo()
	if deviceNo == "" {
		return
	}

	m.mu.Lock()
	current, ok := m.links[deviceNo]
	if ok && current == link {
		delete(m.links, deviceNo)
		delete(m.lastSeen, deviceNo)
	} else {
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := m.status.MarkOffline(ctx, deviceNo); err != nil {
		m.logger.Warn("status record clear failed",
			zap.String("device_no", deviceNo), zap.Error(err))
	}
	m.logger.Info("device disconnected", zap.String("device_no", deviceNo))
}

// RunWatchdog periodically evicts devices whose last heartbeat is older than
// the timeout.
func (m *Manager) RunWatchdog(ctx context.Context) {
	interval := m.timeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, deviceNo := range m.stale(time.Now()) {
				m.logger.Warn("heartbeat timeout", zap.String("device_no", deviceNo))
				m.Evict(ctx, deviceNo)
			}
		}
	}
}

func (m *Manager) stale(now time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for deviceNo, seen := range m.lastSeen {
		if now.Sub(seen) > m.timeout {
			out = append(out, deviceNo)
		}
	}
	return out
}
