package events

import "testing"

func TestSubscribeRegistersConnectionOnChannel(t *testing.T) {
	m := NewConnectionManager(0)
	c := &Connection{ID: "c1", subscriptions: make(map[string]bool)}
	m.registerConnection(c)

	m.subscribe(c, "pipeline:p1")
	if m.subscriberCount("pipeline:p1") != 1 {
		t.Fatalf("expected 1 subscriber")
	}
}

func TestUnsubscribeRemovesChannelWhenEmpty(t *testing.T) {
	m := NewConnectionManager(0)
	c := &Connection{ID: "c1", subscriptions: make(map[string]bool)}
	m.registerConnection(c)
	m.subscribe(c, "pipeline:p1")
	m.unsubscribe(c, "pipeline:p1")

	if m.subscriberCount("pipeline:p1") != 0 {
		t.Errorf("expected channel to be cleaned up after last unsubscribe")
	}
}

func TestBroadcastToUnknownChannelIsNoOp(t *testing.T) {
	m := NewConnectionManager(0)
	m.Broadcast("pipeline:nobody-subscribed", []byte(`{"type":"x"}`))
}

func TestActiveConnectionsCounts(t *testing.T) {
	m := NewConnectionManager(0)
	m.registerConnection(&Connection{ID: "a", subscriptions: make(map[string]bool)})
	m.registerConnection(&Connection{ID: "b", subscriptions: make(map[string]bool)})
	if m.ActiveConnections() != 2 {
		t.Errorf("ActiveConnections = %d, want 2", m.ActiveConnections())
	}
}
