package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"msgcore/internal/authz"
	"msgcore/internal/channel"
	"msgcore/internal/domain"
	"msgcore/internal/service"
	"msgcore/internal/store"
	httptransport "msgcore/internal/transport/http"
)

const (
	testSecret = "stream-test-secret"
	testIssuer = "msgcore-test"
)

type testServer struct {
	srv    *httptest.Server
	store  *store.Store
	outbox *service.Outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	hub := channel.NewHub()
	outbox := service.NewOutbox(st, hub)

	router := httptransport.NewRouter(httptransport.RouterOptions{
		Handlers: &httptransport.Handlers{
			Outbox:            outbox,
			Keys:              service.NewKeyStore(st, st.Devices(), outbox),
			SenderKeys:        service.NewSenderKeys(st, hub, outbox),
			Relay:             service.NewRelay(st, hub, outbox, st.Users()),
			Cleanup:           service.NewCleanup(st),
			Hub:               hub,
			PollTimeout:       2 * time.Second,
			PollInterval:      100 * time.Millisecond,
			HeartbeatInterval: time.Minute,
		},
		Auth: authz.NewHMACValidator(testSecret, testIssuer).Middleware,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: st, outbox: outbox}
}

func mintToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readEvents reads one websocket frame and splits the coalesced events.
func readEvents(t *testing.T, conn *websocket.Conn) []wireEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var events []wireEvent
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/v1/stream"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial (status %d): %v", status, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/v1/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestStreamFlushesOfflineBacklogOnConnect(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()

	// Published while the user has no live channel: persists undelivered.
	notif, err := ts.outbox.Publish(context.Background(), userID, domain.KindGroupInvite,
		"", "You were invited to a group", map[string]any{"groupId": uuid.NewString()})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if notif.Delivered {
		t.Fatalf("offline publish must not be marked delivered")
	}

	conn := ts.dial(t, mintToken(t, userID))

	var events []wireEvent
	for len(events) < 2 {
		events = append(events, readEvents(t, conn)...)
	}
	if events[0].Event != "connected" {
		t.Fatalf("first event must be connected, got %q", events[0].Event)
	}
	var connected struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(events[0].Data, &connected); err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	if connected.UserID != userID.String() {
		t.Fatalf("connected userId = %q, want %q", connected.UserID, userID)
	}

	if events[1].Event != "notification" {
		t.Fatalf("second event must be the backlog notification, got %q", events[1].Event)
	}
	if !bytes.Contains(events[1].Data, []byte(notif.ID.String())) {
		t.Fatalf("backlog event missing notification id: %s", events[1].Data)
	}

	// The flush was a delivery: nothing left to pull.
	remaining, err := ts.outbox.PullUndelivered(context.Background(), userID)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty backlog after flush, got %d", len(remaining))
	}
}

func TestStreamDeliversLivePublish(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()

	conn := ts.dial(t, mintToken(t, userID))
	if events := readEvents(t, conn); events[0].Event != "connected" {
		t.Fatalf("expected connected, got %q", events[0].Event)
	}

	// Registration races the dial response; wait for the hub to see us.
	deadline := time.Now().Add(2 * time.Second)
	for {
		notif, err := ts.outbox.Publish(context.Background(), userID, domain.KindMessageNew,
			"", "New message", nil)
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		if notif.Delivered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("live publish never marked delivered")
		}
		time.Sleep(20 * time.Millisecond)
	}

	for {
		events := readEvents(t, conn)
		for _, ev := range events {
			if ev.Event == "notification" {
				return
			}
		}
	}
}
