package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/yamb-labs/sokoni/internal/order"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func testOrder() *order.Order {
	return &order.Order{
		ID:          "ord_1",
		OrderNumber: "SKN-TEST0001",
		ClientID:    "client-1",
		BusinessID:  "biz-1",
		AgentID:     "agent-1",
		Status:      order.StatusInTransit,
	}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventOrderStatus, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventOrderStatus, EventOrderCompleted},
	}}

	statusEvent := &Event{Type: EventOrderStatus}
	completedEvent := &Event{Type: EventOrderCompleted}
	failedEvent := &Event{Type: EventOrderFailed}

	if !h.shouldSend(client, statusEvent) {
		t.Error("Should receive order_status events")
	}
	if !h.shouldSend(client, completedEvent) {
		t.Error("Should receive order_completed events")
	}
	if h.shouldSend(client, failedEvent) {
		t.Error("Should NOT receive order_failed events")
	}
}

func TestShouldSend_OrderFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		OrderIDs: []string{"ord_1"},
	}}

	matching := &Event{
		Type: EventOrderStatus,
		Data: map[string]interface{}{"orderId": "ord_1"},
	}
	notMatching := &Event{
		Type: EventOrderStatus,
		Data: map[string]interface{}{"orderId": "ord_2"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on orderId")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated orders")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"agent-1"},
	}}

	matchingAgent := &Event{
		Type: EventOrderStatus,
		Data: map[string]interface{}{"clientId": "client-9", "businessId": "biz-9", "agentId": "agent-1"},
	}
	matchingClient := &Event{
		Type: EventOrderStatus,
		Data: map[string]interface{}{"clientId": "agent-1", "businessId": "biz-9", "agentId": ""},
	}
	notMatching := &Event{
		Type: EventOrderStatus,
		Data: map[string]interface{}{"clientId": "client-9", "businessId": "biz-9", "agentId": "agent-2"},
	}

	if !h.shouldSend(client, matchingAgent) {
		t.Error("Should match on agentId")
	}
	if !h.shouldSend(client, matchingClient) {
		t.Error("Should match any party field")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated users")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventOrderStatus}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		OrderIDs: []string{"ord_1"},
	}}

	// Event with non-map data should not crash
	event := &Event{
		Type: EventOrderStatus,
		Data: "string data not a map",
	}

	// Order filter skips non-map data (can't extract the order id), so event passes through
	if !h.shouldSend(client, event) {
		t.Error("Non-map data should pass through when order filter can't extract the id")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

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

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventOrderStatus, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{
		Type:      EventOrderStatus,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"orderId": "ord_1"},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_OrderStatusChanged(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{OrderIDs: []string{"ord_1"}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.OrderStatusChanged(ctx, testOrder(), order.StatusPickedUp, order.Actor{Type: order.ActorAgent, UserID: "agent-1"})

	select {
	case msg := <-client.send:
		var event struct {
			Type EventType              `json:"type"`
			Data map[string]interface{} `json:"data"`
		}
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if event.Type != EventOrderStatus {
			t.Errorf("Expected order_status, got %s", event.Type)
		}
		if event.Data["fromStatus"] != string(order.StatusPickedUp) {
			t.Errorf("Expected fromStatus picked_up, got %v", event.Data["fromStatus"])
		}
		if event.Data["actorType"] != string(order.ActorAgent) {
			t.Errorf("Expected actorType agent, got %v", event.Data["actorType"])
		}
		if event.Data["status"] != string(order.StatusInTransit) {
			t.Errorf("Expected status in_transit, got %v", event.Data["status"])
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for order status event")
	}
}

func TestHub_OrderFailedIncludesReason(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventOrderFailed}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.OrderFailed(ctx, testOrder(), "client unreachable")

	select {
	case msg := <-client.send:
		var event struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if event.Data["reason"] != "client unreachable" {
			t.Errorf("Expected failure reason, got %v", event.Data["reason"])
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for order failed event")
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

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants completions
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventOrderCompleted}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a status event (should be filtered out)
	h.Broadcast(&Event{Type: EventOrderStatus, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive order_status event")
	default:
		// Good - filtered out
	}

	// Send a completion event (should be received)
	h.Broadcast(&Event{Type: EventOrderCompleted, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive order_completed event")
	}
}
