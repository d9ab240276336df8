package telemetry

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/physics"
)

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Clients() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, hub.Clients())
}

func TestHubBroadcastsLifecycle(t *testing.T) {
	hub := NewHub(WithLogger(logging.NewTestLogger()))
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dialHub(t, server)
	if env := readEnvelope(t, conn); env.Type != TypeHello {
		t.Fatalf("expected hello, got %q", env.Type)
	}
	waitForClients(t, hub, 1)

	hub.DeliveryStarted(bowling.Delivery{ID: 7, BallID: 2, Side: "LEFT"})
	hub.BallLanded(bowling.Landing{DeliveryID: 7, Point: physics.Vec3{Z: 6}})
	hub.BallRetired(bowling.Retirement{DeliveryID: 7})

	env := readEnvelope(t, conn)
	if env.Type != TypeDelivery {
		t.Fatalf("expected delivery, got %q", env.Type)
	}
	var d bowling.Delivery
	if err := json.Unmarshal(env.Payload, &d); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	if d.ID != 7 || d.BallID != 2 {
		t.Fatalf("unexpected delivery payload %+v", d)
	}
	if env := readEnvelope(t, conn); env.Type != TypeLanding {
		t.Fatalf("expected landing, got %q", env.Type)
	}
	if env := readEnvelope(t, conn); env.Type != TypeRetired {
		t.Fatalf("expected retired, got %q", env.Type)
	}
}

func TestHubReplaysLastDeliveryToLateViewer(t *testing.T) {
	hub := NewHub(WithLogger(logging.NewTestLogger()))
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	hub.DeliveryStarted(bowling.Delivery{ID: 3})

	conn := dialHub(t, server)
	if env := readEnvelope(t, conn); env.Type != TypeHello {
		t.Fatalf("expected hello first, got %q", env.Type)
	}
	env := readEnvelope(t, conn)
	if env.Type != TypeDelivery || !strings.Contains(string(env.Payload), `"id":3`) {
		t.Fatalf("expected cached delivery, got %+v", env)
	}
}

func TestHubDropsDisconnectedViewer(t *testing.T) {
	hub := NewHub(WithLogger(logging.NewTestLogger()))
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dialHub(t, server)
	readEnvelope(t, conn)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubCloseDisconnectsViewers(t *testing.T) {
	hub := NewHub(WithLogger(logging.NewTestLogger()))
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server)
	readEnvelope(t, conn)
	waitForClients(t, hub, 1)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after hub shutdown")
	}
	if err := hub.Broadcast(TypeFrame, nil); err != nil {
		t.Fatalf("broadcast after close should be a no-op, got %v", err)
	}
}

func TestHubPingsIdleViewers(t *testing.T) {
	hub := NewHub(WithLogger(logging.NewTestLogger()), WithPingInterval(20*time.Millisecond))
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dialHub(t, server)
	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected ping from hub")
	}
}

func TestEncodeRejectsUnsupportedPayload(t *testing.T) {
	hub := NewHub()
	if err := hub.Broadcast(TypeFrame, make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
}
