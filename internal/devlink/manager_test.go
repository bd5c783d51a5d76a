package devlink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
)

type fakeLink struct {
	mu       sync.Mutex
	deviceNo string
	sendErr  error
	sent     []protocol.Command
	closed   bool
}

func (f *fakeLink) DeviceNo() string { return f.deviceNo }

func (f *fakeLink) SendCommand(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeLink) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeStatus struct {
	mu      sync.Mutex
	online  map[string]bool
	marks   int
	unmarks int
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{online: make(map[string]bool)}
}

func (f *fakeStatus) MarkOnline(_ context.Context, deviceNo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[deviceNo] = true
	f.marks++
	return nil
}

func (f *fakeStatus) MarkOffline(_ context.Context, deviceNo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[deviceNo] = false
	f.unmarks++
	return nil
}

func (f *fakeStatus) isOnline(deviceNo string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[deviceNo]
}

func TestManagerRegisterAndSend(t *testing.T) {
	status := newFakeStatus()
	m := NewManager(time.Minute, status, zap.NewNop())
	link := &fakeLink{deviceNo: "WD-0042"}

	m.Register(context.Background(), link)
	if !m.IsConnected("WD-0042") {
		t.Fatal("device not registered")
	}
	if !status.isOnline("WD-0042") {
		t.Fatal("status record not updated")
	}

	cmd := protocol.OpenWater("", 1200, 9000, 2, "ord-1")
	if err := m.Send(context.Background(), "WD-0042", cmd); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(link.sent) != 1 || link.sent[0].RE != "ord-1" {
		t.Fatalf("command not delivered: %+v", link.sent)
	}
}

func TestManagerSendOffline(t *testing.T) {
	m := NewManager(time.Minute, newFakeStatus(), zap.NewNop())

	err := m.Send(context.Background(), "WD-0042", protocol.Command{Cmd: protocol.CmdOpenWater})
	if !errors.Is(err, models.ErrDeviceOffline) {
		t.Fatalf("err = %v, want ErrDeviceOffline", err)
	}
}

func TestManagerSendFailureEvicts(t *testing.T) {
	status := newFakeStatus()
	m := NewManager(time.Minute, status, zap.NewNop())
	link := &fakeLink{deviceNo: "WD-0042", sendErr: errors.New("broken pipe")}
	m.Register(context.Background(), link)

	err := m.Send(context.Background(), "WD-0042", protocol.Command{Cmd: protocol.CmdOpenWater})
	if !errors.Is(err, models.ErrTransportFailure) {
		t.Fatalf("err = %v, want ErrTransportFailure", err)
	}
	if m.IsConnected("WD-0042") {
		t.Fatal("failed link still registered")
	}
	if !link.isClosed() {
		t.Fatal("failed link not closed")
	}
	if status.isOnline("WD-0042") {
		t.Fatal("status record not cleared")
	}
}

func TestManagerRegisterReplacesPreviousSession(t *testing.T) {
	m := NewManager(time.Minute, newFakeStatus(), zap.NewNop())
	old := &fakeLink{deviceNo: "WD-0042"}
	m.Register(context.Background(), old)

	replacement := &fakeLink{deviceNo: "WD-0042"}
	m.Register(context.Background(), replacement)

	if !old.isClosed() {
		t.Fatal("previous session not closed")
	}
	if err := m.Send(context.Background(), "WD-0042", protocol.Command{Cmd: protocol.CmdOpenWater}); err != nil {
		t.Fatalf("send through replacement: %v", err)
	}
	if len(replacement.sent) != 1 || len(old.sent) != 0 {
		t.Fatal("command went to the wrong session")
	}
}

func TestManagerDropOnlyRemovesCurrentLink(t *testing.T) {
	status := newFakeStatus()
	m := NewManager(time.Minute, status, zap.NewNop())
	old := &fakeLink{deviceNo: "WD-0042"}
	m.Register(context.Background(), old)
	replacement := &fakeLink{deviceNo: "WD-0042"}
	m.Register(context.Background(), replacement)

	// The old session's close hook fires after the replacement took over;
	// it must not tear down the live registration.
	m.Drop(context.Background(), old)
	if !m.IsConnected("WD-0042") {
		t.Fatal("stale close hook removed the live session")
	}

	m.Drop(context.Background(), replacement)
	if m.IsConnected("WD-0042") {
		t.Fatal("live session not removed by its own close hook")
	}
	if status.isOnline("WD-0042") {
		t.Fatal("status record not cleared on drop")
	}
}

func TestManagerStaleDetection(t *testing.T) {
	m := NewManager(time.Minute, newFakeStatus(), zap.NewNop())
	link := &fakeLink{deviceNo: "WD-0042"}
	m.Register(context.Background(), link)

	if got := m.stale(time.Now()); len(got) != 0 {
		t.Fatalf("fresh device reported stale: %v", got)
	}
	if got := m.stale(time.Now().Add(2 * time.Minute)); len(got) != 1 || got[0] != "WD-0042" {
		t.Fatalf("stale = %v, want [WD-0042]", got)
	}

	m.Heartbeat(context.Background(), "WD-0042")
	if got := m.stale(time.Now().Add(30 * time.Second)); len(got) != 0 {
		t.Fatalf("heartbeat did not refresh liveness: %v", got)
	}
}

func TestManagerHeartbeatUnknownDevice(t *testing.T) {
	status := newFakeStatus()
	m := NewManager(time.Minute, status, zap.NewNop())

	m.Heartbeat(context.Background(), "WD-9999")
	if status.marks != 0 {
		t.Fatal("heartbeat for an unregistered device touched the status record")
	}
}
