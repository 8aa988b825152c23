package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"msgcore/internal/authz"
	"msgcore/internal/channel"
	obsmw "msgcore/internal/observability/middleware"
	"msgcore/internal/service"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	Outbox     *service.Outbox
	Keys       *service.KeyStore
	SenderKeys *service.SenderKeys
	Relay      *service.Relay
	Cleanup    *service.Cleanup
	Hub        *channel.Hub

	PollTimeout       time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	DefaultPageSize   int
	MaxPageSize       int
}

type RouterOptions struct {
	Handlers *Handlers
	// Auth validates bearer tokens and injects the subject; nil leaves the
	// API open (tests only).
	Auth           func(http.Handler) http.Handler
	CORSOrigins    []string
	FetchRateLimit int
}

func NewRouter(opts RouterOptions) chi.Router {
	h := opts.Handlers
	if h.PollTimeout <= 0 {
		h.PollTimeout = service.DefaultPollTimeout
	}
	if h.PollInterval <= 0 {
		h.PollInterval = service.DefaultPollInterval
	}
	if h.HeartbeatInterval <= 0 {
		h.HeartbeatInterval = 30 * time.Second
	}
	if h.DefaultPageSize <= 0 {
		h.DefaultPageSize = 50
	}
	if h.MaxPageSize <= 0 {
		h.MaxPageSize = 100
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)
	r.Use(httprate.LimitByIP(600, time.Minute))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "X-Trace-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	fetchLimit := opts.FetchRateLimit
	if fetchLimit <= 0 {
		fetchLimit = 60
	}
	// Bundle fetch is the reconnaissance-friendly endpoint: a tight
	// per-caller limit on top of the global one.
	fetchLimiter := httprate.Limit(fetchLimit, time.Minute,
		httprate.WithKeyFuncs(callerKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeRateLimited(w, 60)
		}),
	)

	r.Route("/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		// The stream carries a response hijack, so chi's Timeout middleware
		// applies to everything below it only.
		r.Get("/stream", h.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.listNotifications)
				r.Get("/poll", h.pollNotifications)
				r.Post("/publish", h.publishNotification)
				r.Post("/read-all", h.markAllNotificationsRead)
				r.Post("/{id}/read", h.markNotificationRead)
				r.Delete("/{id}", h.deleteNotification)
			})

			r.Route("/keys", func(r chi.Router) {
				r.Post("/upload", h.uploadBundle)
				r.With(fetchLimiter).Get("/bundle/{userId}", h.fetchBundle)
				r.Post("/replenish", h.replenishKeys)
				r.Get("/count", h.countKeys)
			})

			r.Route("/groups/{groupId}/sender-keys", func(r chi.Router) {
				r.Post("/", h.distributeSenderKeys)
				r.Get("/", h.listSenderKeys)
				r.Delete("/", h.revokeGroupSenderKeys)
				r.Delete("/user/{userId}", h.revokeUserSenderKeys)
			})

			r.Route("/chats/{chatId}/messages", func(r chi.Router) {
				r.Post("/", h.sendMessage)
				r.Get("/", h.listMessages)
				r.Post("/{id}/read", h.markMessageRead)
				r.Delete("/{id}", h.deleteMessage)
			})

			r.Delete("/users/{userId}/data", h.deleteUserData)
		})
	})

	return r
}

// callerKey rates by authenticated subject when present, else client IP.
func callerKey(r *http.Request) (string, error) {
	if sub, ok := authz.SubjectFrom(r.Context()); ok {
		return sub.String(), nil
	}
	return httprate.KeyByIP(r)
}
