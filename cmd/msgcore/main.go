package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"msgcore/internal/authz"
	"msgcore/internal/channel"
	"msgcore/internal/config"
	"msgcore/internal/observability/logging"
	"msgcore/internal/observability/metrics"
	"msgcore/internal/service"
	"msgcore/internal/store"
	httptransport "msgcore/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "msgcore",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	metrics.MustRegister("msgcore")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("gorm open: %v", err)
	}

	st := store.New(db)
	if err := st.AutoMigrate(ctx); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	hub := channel.NewHub()
	hub.StartReaper(ctx, cfg.ReapInterval, cfg.ReapThreshold)

	outbox := service.NewOutbox(st, hub)
	keys := service.NewKeyStore(st, st.Devices(), outbox)
	keys.SetLowWaterMark(int64(cfg.LowWaterMark))
	senderKeys := service.NewSenderKeys(st, hub, outbox)
	relay := service.NewRelay(st, hub, outbox, st.Users())
	cleanup := service.NewCleanup(st)

	var authMW func(http.Handler) http.Handler
	switch {
	case cfg.AuthHS256Secret != "":
		slog.Info("auth: HS256 shared-secret validation")
		authMW = authz.NewHMACValidator(cfg.AuthHS256Secret, cfg.Issuer).Middleware
	case cfg.AuthJWKSURL != "":
		slog.Info("auth: JWKS validation", "url", cfg.AuthJWKSURL)
		jv, err := authz.NewJWTValidator(ctx, cfg.AuthJWKSURL, cfg.Issuer)
		if err != nil {
			log.Fatalf("jwt validator: %v", err)
		}
		authMW = jv.Middleware
	default:
		log.Fatal("set AUTH_HS256_SECRET or AUTH_JWKS_URL")
	}

	router := httptransport.NewRouter(httptransport.RouterOptions{
		Handlers: &httptransport.Handlers{
			Outbox:            outbox,
			Keys:              keys,
			SenderKeys:        senderKeys,
			Relay:             relay,
			Cleanup:           cleanup,
			Hub:               hub,
			PollTimeout:       cfg.PollTimeout,
			PollInterval:      cfg.PollInterval,
			HeartbeatInterval: cfg.HeartbeatInterval,
			DefaultPageSize:   cfg.DefaultPageSize,
			MaxPageSize:       cfg.MaxPageSize,
		},
		Auth:           authMW,
		CORSOrigins:    cfg.CORSOrigins,
		FetchRateLimit: cfg.FetchRateLimit,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("msgcore listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("serve: %v", err)
	}
}
