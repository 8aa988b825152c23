package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"msgcore/internal/channel"
	"msgcore/internal/domain"
	"msgcore/internal/service"
	"msgcore/internal/store"
)

type env struct {
	store      *store.Store
	hub        *channel.Hub
	outbox     *service.Outbox
	keystore   *service.KeyStore
	senderkeys *service.SenderKeys
	relay      *service.Relay
}

func setup(t *testing.T) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Shared-cache sqlite rejects concurrent writers outright; a single
	// connection serializes them while still interleaving the logical
	// claim race.
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
	return &env{
		store:      st,
		hub:        hub,
		outbox:     outbox,
		keystore:   service.NewKeyStore(st, st.Devices(), outbox),
		senderkeys: service.NewSenderKeys(st, hub, outbox),
		relay:      service.NewRelay(st, hub, outbox, st.Users()),
	}
}

func (e *env) addUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := e.store.Users().Upsert(context.Background(), domain.User{ID: id, DisplayName: name}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return id
}

func (e *env) addDevice(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := e.store.Devices().Upsert(context.Background(), domain.Device{ID: id, UserID: userID}); err != nil {
		t.Fatalf("upsert device: %v", err)
	}
	return id
}

func (e *env) addMember(t *testing.T, groupID, userID uuid.UUID, role string) {
	t.Helper()
	member := domain.GroupMember{GroupID: groupID, UserID: userID, Role: role}
	if err := e.store.Memberships().Upsert(context.Background(), member); err != nil {
		t.Fatalf("upsert member: %v", err)
	}
}
