package channel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw, ok := <-c.Outbound():
		if !ok {
			t.Fatalf("send queue closed")
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
	return Event{}
}

func TestPushUnreachableUser(t *testing.T) {
	hub := NewHub()
	if hub.Push(uuid.New(), "notification", map[string]string{"x": "y"}) {
		t.Fatalf("push to unreachable user should report false")
	}
}

func TestRegisterSupersedesPriorChannel(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	first := NewClient(userID, nil)
	second := NewClient(userID, nil)

	hub.Register(first)
	hub.Register(second)

	// The superseded sink is closed so its write pump exits.
	select {
	case _, ok := <-first.Outbound():
		if ok {
			t.Fatalf("superseded client should receive no events")
		}
	case <-time.After(time.Second):
		t.Fatalf("superseded client send queue not closed")
	}

	if !hub.Push(userID, "notification", map[string]string{"id": "1"}) {
		t.Fatalf("push to live user failed")
	}
	ev := recvEvent(t, second)
	if ev.Event != "notification" {
		t.Fatalf("expected notification event, got %q", ev.Event)
	}
	if hub.Len() != 1 {
		t.Fatalf("expected one live channel, got %d", hub.Len())
	}
}

func TestUnregisterIsIdempotentAndScoped(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	first := NewClient(userID, nil)
	hub.Register(first)

	second := NewClient(userID, nil)
	hub.Register(second)

	// Unregistering the superseded client must not tear down its successor.
	hub.Unregister(first)
	hub.Unregister(first)

	if !hub.IsReachable(userID) {
		t.Fatalf("replacement channel was torn down by stale unregister")
	}

	hub.Unregister(second)
	if hub.IsReachable(userID) {
		t.Fatalf("user still reachable after unregister")
	}
}

func TestPushManyIndependentOutcomes(t *testing.T) {
	hub := NewHub()
	online := uuid.New()
	offline := uuid.New()

	c := NewClient(online, nil)
	hub.Register(c)

	delivered, missed := hub.PushMany([]uuid.UUID{online, offline}, "notification", nil)
	if len(delivered) != 1 || delivered[0] != online {
		t.Fatalf("unexpected delivered set: %v", delivered)
	}
	if len(missed) != 1 || missed[0] != offline {
		t.Fatalf("unexpected missed set: %v", missed)
	}
}

func TestPushEvictsOnFullBuffer(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()
	c := NewClient(userID, nil)
	hub.Register(c)

	// Nothing drains the queue; fill it to the brim.
	for i := 0; i < sendBuffer; i++ {
		if !hub.Push(userID, "notification", i) {
			t.Fatalf("push %d failed before buffer was full", i)
		}
	}
	if hub.Push(userID, "notification", "overflow") {
		t.Fatalf("push into a full buffer should fail")
	}
	if hub.IsReachable(userID) {
		t.Fatalf("client should be evicted after failed push")
	}
}

func TestReapStale(t *testing.T) {
	hub := NewHub()
	now := time.Now()
	hub.now = func() time.Time { return now }

	idle := NewClient(uuid.New(), nil)
	active := NewClient(uuid.New(), nil)
	hub.Register(idle)
	hub.Register(active)

	now = now.Add(4 * time.Minute)
	hub.Heartbeat(active.UserID)
	now = now.Add(2 * time.Minute)

	if n := hub.ReapStale(5 * time.Minute); n != 1 {
		t.Fatalf("expected 1 reaped channel, got %d", n)
	}
	if hub.IsReachable(idle.UserID) {
		t.Fatalf("idle channel survived the reaper")
	}
	if !hub.IsReachable(active.UserID) {
		t.Fatalf("active channel was reaped")
	}
}
