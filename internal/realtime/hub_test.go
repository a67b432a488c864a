package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sharemart/sharemart/internal/logging"
)

func testHub() *Hub {
	return NewHub(logging.Nop())
}

func testClient(h *Hub, userID string) *Client {
	return &Client{
		hub:    h,
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h, "cst0000001")

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["connectedUsers"].(int) != 1 {
		t.Errorf("Expected 1 connected user, got %v", stats["connectedUsers"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	if stats["connectedUsers"].(int) != 0 {
		t.Errorf("Expected 0 connected users after unregister, got %v", stats["connectedUsers"])
	}
}

func TestHub_BroadcastToUser(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h, "cst0000001")
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastToUser("cst0000001", map[string]any{
		"quoteId": "qte0000001", "subject": "Payment received",
	})

	select {
	case msg := <-client.send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.UserID != "cst0000001" {
			t.Errorf("userId = %s", env.UserID)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastReachesOnlyAddressee(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	customer := testClient(h, "cst0000001")
	owner := testClient(h, "own0000001")
	h.register <- customer
	h.register <- owner
	time.Sleep(50 * time.Millisecond)

	h.BroadcastToUser("own0000001", map[string]any{"quoteId": "qte0000001"})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-customer.send:
		t.Error("customer should not receive the owner's event")
	default:
	}

	select {
	case msg := <-owner.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("owner should receive the event")
	}
}

func TestHub_FanOutToAllUserConnections(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	phone := testClient(h, "cst0000001")
	laptop := testClient(h, "cst0000001")
	h.register <- phone
	h.register <- laptop
	time.Sleep(50 * time.Millisecond)

	h.BroadcastToUser("cst0000001", map[string]any{"quoteId": "qte0000001"})

	for _, c := range []*Client{phone, laptop} {
		select {
		case <-c.send:
		case <-time.After(time.Second):
			t.Error("every connection of the user should receive the event")
		}
	}
}

func TestHub_BroadcastToOfflineUserIsDropped(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Should not panic or block
	h.BroadcastToUser("nobody0001", map[string]any{"quoteId": "qte0000001"})
	time.Sleep(50 * time.Millisecond)

	if got := h.Stats()["totalEvents"].(int64); got != 1 {
		t.Errorf("totalEvents = %d, want 1", got)
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}
