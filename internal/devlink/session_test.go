package devlink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
)

type fakeDeviceStore struct {
	device     *models.Device
	heartbeats int
	snapshots  int
}

func (f *fakeDeviceStore) GetByNo(_ context.Context, deviceNo string) (*models.Device, error) {
	if f.device == nil || f.device.DeviceNo != deviceNo {
		return nil, models.ErrNotFound
	}
	return f.device, nil
}

func (f *fakeDeviceStore) TouchHeartbeat(context.Context, string, time.Time) error {
	f.heartbeats++
	return nil
}

func (f *fakeDeviceStore) UpdateSnapshot(context.Context, string, int64, int64, time.Time) error {
	f.snapshots++
	return nil
}

func authFrame(t *testing.T, deviceNo, secret string, ts int64) []byte {
	t.Helper()
	raw, err := json.Marshal(protocol.DeviceFrame{
		Cmd:      protocol.CmdAuth,
		DeviceNo: deviceNo,
		TS:       ts,
		Sign:     protocol.AuthToken(deviceNo, ts, secret),
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func newSessionFixture() (*Session, *fakeDeviceStore, *Manager) {
	store := &fakeDeviceStore{device: &models.Device{
		DeviceNo: "WD-0042",
		Secret:   "device-secret",
	}}
	manager := NewManager(time.Minute, newFakeStatus(), zap.NewNop())
	return NewSession(store, manager, zap.NewNop()), store, manager
}

func decodeAck(t *testing.T, raw []byte) protocol.Ack {
	t.Helper()
	var ack protocol.Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("bad ack %s: %v", raw, err)
	}
	return ack
}

func TestSessionAuthBindsAndRegisters(t *testing.T) {
	session, store, manager := newSessionFixture()
	conn := NewConn(nil, session, time.Second, zap.NewNop(), nil)

	resp, err := session.Process(context.Background(), conn,
		authFrame(t, "WD-0042", "device-secret", time.Now().Unix()))
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if ack := decodeAck(t, resp); ack.Result != 1 {
		t.Fatalf("ack = %+v, want accepted", ack)
	}
	if conn.DeviceNo() != "WD-0042" {
		t.Fatal("device number not bound")
	}
	if !manager.IsConnected("WD-0042") {
		t.Fatal("connection not registered")
	}
	if store.heartbeats != 1 {
		t.Fatal("heartbeat not persisted on auth")
	}
}

func TestSessionAuthBadSecret(t *testing.T) {
	session, _, manager := newSessionFixture()
	conn := NewConn(nil, session, time.Second, zap.NewNop(), nil)

	resp, err := session.Process(context.Background(), conn,
		authFrame(t, "WD-0042", "wrong-secret", time.Now().Unix()))
	if err == nil {
		t.Fatal("bad credential accepted")
	}
	if ack := decodeAck(t, resp); ack.Result != 0 {
		t.Fatalf("ack = %+v, want rejected", ack)
	}
	if conn.DeviceNo() != "" || manager.IsConnected("WD-0042") {
		t.Fatal("rejected connection was bound")
	}
}

func TestSessionAuthStaleTimestamp(t *testing.T) {
	session, _, _ := newSessionFixture()
	conn := NewConn(nil, session, time.Second, zap.NewNop(), nil)

	stale := time.Now().Add(-time.Hour).Unix()
	_, err := session.Process(context.Background(), conn,
		authFrame(t, "WD-0042", "device-secret", stale))
	if err == nil {
		t.Fatal("replayed credential accepted")
	}
}

func TestSessionRejectsPreAuthFrames(t *testing.T) {
	session, store, _ := newSessionFixture()
	conn := NewConn(nil, session, time.Second, zap.NewNop(), nil)

	raw, _ := json.Marshal(protocol.DeviceFrame{
		Cmd:      protocol.CmdHeartbeat,
		DeviceNo: "WD-0042",
	})
	if _, err := session.Process(context.Background(), conn, raw); err == nil {
		t.Fatal("heartbeat accepted before authentication")
	}
	if store.heartbeats != 0 {
		t.Fatal("unauthenticated heartbeat persisted")
	}
}

func TestSessionRejectsFrameForOtherDevice(t *testing.T) {
	session, store, manager := newSessionFixture()
	conn := NewConn(nil, session, time.Second, zap.NewNop(), nil)

	if _, err := session.Process(context.Background(), conn,
		authFrame(t, "WD-0042", "device-secret", time.Now().Unix())); err != nil {
		t.Fatalf("auth: %v", err)
	}
	heartbeats := store.heartbeats

	// A bound socket must not refresh liveness for a different unit.
	hb, _ := json.Marshal(protocol.DeviceFrame{Cmd: protocol.CmdHeartbeat, DeviceNo: "WD-0099"})
	if _, err := session.Process(context.Background(), conn, hb); err == nil {
		t.Fatal("heartbeat for another device accepted")
	}
	if store.heartbeats != heartbeats {
		t.Fatal("forged heartbeat persisted")
	}
	if manager.IsConnected("WD-0099") {
		t.Fatal("forged device marked connected")
	}

	st, _ := json.Marshal(protocol.DeviceFrame{
		Cmd: protocol.CmdStatus, DeviceNo: "WD-0099", TDS: 85, TempC: 19,
	})
	if _, err := session.Process(context.Background(), conn, st); err == nil {
		t.Fatal("snapshot for another device accepted")
	}
	if store.snapshots != 0 {
		t.Fatal("forged snapshot persisted")
	}
}

func TestSessionHeartbeatAndSnapshot(t *testing.T) {
	session, store, manager := newSessionFixture()
	conn := NewConn(nil, session, time.Second, zap.NewNop(), nil)

	if _, err := session.Process(context.Background(), conn,
		authFrame(t, "WD-0042", "device-secret", time.Now().Unix())); err != nil {
		t.Fatalf("auth: %v", err)
	}

	hb, _ := json.Marshal(protocol.DeviceFrame{Cmd: protocol.CmdHeartbeat, DeviceNo: "WD-0042"})
	resp, err := session.Process(context.Background(), conn, hb)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if ack := decodeAck(t, resp); ack.Cmd != protocol.CmdHeartbeat || ack.Result != 1 {
		t.Fatalf("ack = %+v", ack)
	}

	st, _ := json.Marshal(protocol.DeviceFrame{
		Cmd: protocol.CmdStatus, DeviceNo: "WD-0042", TDS: 85, TempC: 19,
	})
	if _, err := session.Process(context.Background(), conn, st); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if store.snapshots != 1 {
		t.Fatal("snapshot not persisted")
	}
	if !manager.IsConnected("WD-0042") {
		t.Fatal("device dropped during normal traffic")
	}
}
