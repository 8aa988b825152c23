package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"msgcore/internal/channel"
	"msgcore/internal/domain"
)

func TestPublishOfflineThenPullExactlyOnce(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "alice")

	notif, err := e.outbox.Publish(context.Background(), userID, domain.KindGroupInvite, "Group Invitation", "You were invited", map[string]any{"groupId": uuid.NewString()})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if notif.Delivered {
		t.Fatalf("offline publish must not be marked delivered")
	}

	pulled, err := e.outbox.PullUndelivered(context.Background(), userID)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(pulled) != 1 || pulled[0].ID != notif.ID {
		t.Fatalf("expected the published event once, got %d", len(pulled))
	}
	if !pulled[0].Delivered {
		t.Fatalf("pulled event must be flagged delivered")
	}

	again, err := e.outbox.PullUndelivered(context.Background(), userID)
	if err != nil {
		t.Fatalf("second pull: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second pull must be empty, got %d", len(again))
	}
}

func TestPublishLivePushMarksDelivered(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "bob")

	client := channel.NewClient(userID, nil)
	e.hub.Register(client)

	notif, err := e.outbox.Publish(context.Background(), userID, domain.KindTripUpdate, "", "Trip changed", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !notif.Delivered {
		t.Fatalf("live publish should be marked delivered")
	}
	if notif.Title != domain.KindTripUpdate.DefaultTitle() {
		t.Fatalf("empty title should fall back to the kind default, got %q", notif.Title)
	}

	select {
	case <-client.Outbound():
	case <-time.After(time.Second):
		t.Fatalf("no live event received")
	}

	pulled, err := e.outbox.PullUndelivered(context.Background(), userID)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(pulled) != 0 {
		t.Fatalf("live-delivered event must not surface on pull")
	}
}

func TestPublishRejectsUnknownKind(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "carol")

	_, err := e.outbox.Publish(context.Background(), userID, domain.NotificationKind("bogus.kind"), "t", "b", nil)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestPublishRejectsOversizedPayload(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "dave")

	big := make([]byte, 70*1024)
	for i := range big {
		big[i] = 'a'
	}
	_, err := e.outbox.Publish(context.Background(), userID, domain.KindGroupUpdate, "t", "b", map[string]any{"blob": string(big)})
	if !errors.Is(err, domain.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestOwnerScopedMutations(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, "owner")
	stranger := e.addUser(t, "stranger")

	notif, err := e.outbox.Publish(context.Background(), owner, domain.KindEventReminder, "t", "b", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Non-owner access looks like the record does not exist.
	if err := e.outbox.MarkRead(context.Background(), notif.ID, stranger); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("non-owner markRead: expected ErrNotFound, got %v", err)
	}
	if err := e.outbox.Delete(context.Background(), notif.ID, stranger); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("non-owner delete: expected ErrNotFound, got %v", err)
	}

	if err := e.outbox.MarkRead(context.Background(), notif.ID, owner); err != nil {
		t.Fatalf("owner markRead: %v", err)
	}
	if err := e.outbox.Delete(context.Background(), notif.ID, owner); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "erin")

	for i := 0; i < 3; i++ {
		if _, err := e.outbox.Publish(context.Background(), userID, domain.KindGroupUpdate, "t", "b", nil); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	n, err := e.outbox.MarkAllRead(context.Background(), userID)
	if err != nil {
		t.Fatalf("markAllRead: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows marked read, got %d", n)
	}
	n, err = e.outbox.MarkAllRead(context.Background(), userID)
	if err != nil {
		t.Fatalf("second markAllRead: %v", err)
	}
	if n != 0 {
		t.Fatalf("second markAllRead should touch nothing, got %d", n)
	}
}

func TestListNewestFirst(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "frank")

	var last uuid.UUID
	for i := 0; i < 3; i++ {
		notif, err := e.outbox.Publish(context.Background(), userID, domain.KindGroupUpdate, "t", "b", nil)
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		last = notif.ID
		time.Sleep(5 * time.Millisecond) // distinct createdAt ordering
	}

	notifs, total, err := e.outbox.List(context.Background(), userID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(notifs) != 3 {
		t.Fatalf("expected 3 notifications, got %d (total %d)", len(notifs), total)
	}
	if notifs[0].ID != last {
		t.Fatalf("expected newest notification first")
	}
}

func TestPublishManyIndependentOutcomes(t *testing.T) {
	e := setup(t)
	online := e.addUser(t, "online")
	offline := e.addUser(t, "offline")

	client := channel.NewClient(online, nil)
	e.hub.Register(client)

	published, delivered := e.outbox.PublishMany(context.Background(), []uuid.UUID{online, offline}, domain.KindMembershipChange, "t", "b", nil)
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 delivered live, got %d", delivered)
	}
}

func TestPollReturnsEarlyAndOnTimeout(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "grace")

	// Empty poll times out with no notifications.
	notifs, err := e.outbox.Poll(context.Background(), userID, 60*time.Millisecond, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(notifs) != 0 {
		t.Fatalf("expected empty poll result, got %d", len(notifs))
	}

	go func() {
		time.Sleep(40 * time.Millisecond)
		_, _ = e.outbox.Publish(context.Background(), userID, domain.KindGroupInvite, "t", "b", nil)
	}()

	start := time.Now()
	notifs, err = e.outbox.Poll(context.Background(), userID, 2*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(notifs) != 1 {
		t.Fatalf("expected the published event, got %d", len(notifs))
	}
	if time.Since(start) >= 2*time.Second {
		t.Fatalf("poll should have returned before the timeout")
	}
}
