package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"msgcore/internal/domain"
	"msgcore/internal/dto"
)

func bundleRequest(n int) dto.UploadBundleRequest {
	req := dto.UploadBundleRequest{
		IdentityKey: "identity-1",
		SignedPreKey: dto.SignedPreKey{
			ID:        1,
			PublicKey: "signed-1",
			Signature: "sig-1",
		},
	}
	for i := 0; i < n; i++ {
		req.OneTimePreKeys = append(req.OneTimePreKeys, dto.OneTimePreKey{
			ID:        uint32(i + 1),
			PublicKey: fmt.Sprintf("otk-%d", i+1),
		})
	}
	return req
}

func TestUploadRequiresRegisteredDevice(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "alice")

	_, err := e.keystore.Upload(context.Background(), userID, uuid.New(), bundleRequest(2))
	if !errors.Is(err, domain.ErrDeviceNotRegistered) {
		t.Fatalf("expected ErrDeviceNotRegistered, got %v", err)
	}
}

func TestUploadRejectsIncompleteBundle(t *testing.T) {
	e := setup(t)
	userID := e.addUser(t, "alice")
	deviceID := e.addDevice(t, userID)

	req := bundleRequest(1)
	req.IdentityKey = ""
	_, err := e.keystore.Upload(context.Background(), userID, deviceID, req)
	if !errors.Is(err, domain.ErrInvalidBundleFormat) {
		t.Fatalf("expected ErrInvalidBundleFormat, got %v", err)
	}
}

func TestFetchConsumesOneKeyPerDevice(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, "owner")
	deviceID := e.addDevice(t, owner)

	if _, err := e.keystore.Upload(context.Background(), owner, deviceID, bundleRequest(2)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	first, err := e.keystore.Fetch(context.Background(), owner)
	if err != nil {
		t.Fatalf("fetch 1: %v", err)
	}
	if len(first.Devices) != 1 || first.Devices[0].OneTimePreKey == nil {
		t.Fatalf("expected one device bundle with a one-time key: %+v", first)
	}

	second, err := e.keystore.Fetch(context.Background(), owner)
	if err != nil {
		t.Fatalf("fetch 2: %v", err)
	}
	if second.Devices[0].OneTimePreKey == nil {
		t.Fatalf("expected a one-time key on second fetch")
	}
	if second.Devices[0].OneTimePreKey.ID == first.Devices[0].OneTimePreKey.ID {
		t.Fatalf("same one-time key handed out twice")
	}

	// Pool exhausted: identity and signed pre-key still served.
	third, err := e.keystore.Fetch(context.Background(), owner)
	if err != nil {
		t.Fatalf("fetch 3: %v", err)
	}
	if third.Devices[0].OneTimePreKey != nil {
		t.Fatalf("expected exhausted pool")
	}
	if third.Devices[0].IdentityKey == "" || third.Devices[0].SignedPreKey.PublicKey == "" {
		t.Fatalf("exhaustion must not hide identity or signed pre-key")
	}
}

func TestFetchUnknownUserFailsNotFound(t *testing.T) {
	e := setup(t)

	_, err := e.keystore.Fetch(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrBundleNotFound) {
		t.Fatalf("expected ErrBundleNotFound, got %v", err)
	}
}

func TestConcurrentFetchNeverDuplicatesKeys(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, "owner")
	deviceID := e.addDevice(t, owner)

	const poolSize = 3
	const fetchers = 8

	if _, err := e.keystore.Upload(context.Background(), owner, deviceID, bundleRequest(poolSize)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	var mu sync.Mutex
	seen := map[uint32]int{}
	var wg sync.WaitGroup
	for i := 0; i < fetchers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.keystore.Fetch(context.Background(), owner)
			if err != nil {
				t.Errorf("fetch: %v", err)
				return
			}
			if otk := resp.Devices[0].OneTimePreKey; otk != nil {
				mu.Lock()
				seen[otk.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != poolSize {
		t.Fatalf("expected %d distinct keys consumed, got %d", poolSize, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("one-time key %d was handed out %d times", id, count)
		}
	}
}

func TestLowPreKeyNoticeFiresExactlyOnceAtCrossing(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, "owner")
	deviceID := e.addDevice(t, owner)

	if _, err := e.keystore.Upload(context.Background(), owner, deviceID, bundleRequest(30)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	lowNotices := func() int {
		notifs, _, err := e.outbox.List(context.Background(), owner, 1, 100)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		count := 0
		for _, n := range notifs {
			if n.Kind == domain.KindLowPreKeys {
				count++
			}
		}
		return count
	}

	for i := 1; i <= 5; i++ {
		if _, err := e.keystore.Fetch(context.Background(), owner); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if n := lowNotices(); n != 0 {
		t.Fatalf("fetches 1-5 must fire no low-pre-key notice, got %d", n)
	}

	// Sixth fetch leaves 24 remaining, the first value below the mark.
	if _, err := e.keystore.Fetch(context.Background(), owner); err != nil {
		t.Fatalf("fetch 6: %v", err)
	}
	if n := lowNotices(); n != 1 {
		t.Fatalf("crossing fetch must fire exactly one notice, got %d", n)
	}

	if _, err := e.keystore.Fetch(context.Background(), owner); err != nil {
		t.Fatalf("fetch 7: %v", err)
	}
	if n := lowNotices(); n != 1 {
		t.Fatalf("post-crossing fetches must not repeat the notice, got %d", n)
	}
}

func TestIdentityRotationNotice(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, "owner")
	deviceID := e.addDevice(t, owner)

	if _, err := e.keystore.Upload(context.Background(), owner, deviceID, bundleRequest(1)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	// Same identity key: no rotation.
	resp, err := e.keystore.Upload(context.Background(), owner, deviceID, bundleRequest(1))
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if resp.IdentityRotated {
		t.Fatalf("unchanged identity key must not rotate")
	}

	req := bundleRequest(1)
	req.IdentityKey = "identity-2"
	resp, err = e.keystore.Upload(context.Background(), owner, deviceID, req)
	if err != nil {
		t.Fatalf("rotating upload: %v", err)
	}
	if !resp.IdentityRotated {
		t.Fatalf("changed identity key must be observed as rotation")
	}

	notifs, _, err := e.outbox.List(context.Background(), owner, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	rotations := 0
	for _, n := range notifs {
		if n.Kind == domain.KindKeyRotation {
			rotations++
		}
	}
	if rotations != 1 {
		t.Fatalf("expected exactly one rotation notice, got %d", rotations)
	}
}

func TestReplenishAndCount(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, "owner")
	deviceID := e.addDevice(t, owner)

	if _, err := e.keystore.Upload(context.Background(), owner, deviceID, bundleRequest(2)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	resp, err := e.keystore.Replenish(context.Background(), owner, deviceID, []dto.OneTimePreKey{
		{ID: 100, PublicKey: "otk-100"},
		{ID: 101, PublicKey: "otk-101"},
	})
	if err != nil {
		t.Fatalf("replenish: %v", err)
	}
	if resp.Added != 2 || resp.Remaining != 4 {
		t.Fatalf("unexpected replenish result: %+v", resp)
	}

	count, err := e.keystore.Count(context.Background(), owner, deviceID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.Remaining != 4 {
		t.Fatalf("expected 4 remaining, got %d", count.Remaining)
	}

	_, err = e.keystore.Replenish(context.Background(), owner, uuid.New(), nil)
	if !errors.Is(err, domain.ErrDeviceNotRegistered) {
		t.Fatalf("expected ErrDeviceNotRegistered, got %v", err)
	}
}
