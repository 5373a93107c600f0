package dispatcher

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type Security struct {
	InternalAPIKey string
	JWTSecret      []byte
}

func NewHTTPHandler(c *Controller, sec Security, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/internal/trigger", func(r chi.Router) {
		r.Use(auth.InternalKey(sec.InternalAPIKey))
		r.Post("/ticket-created", c.TicketCreated)
		r.Post("/ticket-assigned", c.TicketAssigned)
		r.Post("/new-reply", c.NewReply)
		r.Post("/status-changed", c.StatusChanged)
		r.Post("/sla-breach", c.SLABreach)
		r.Post("/external-message", c.ExternalMessage)
		r.Post("/ticket-deleted", c.TicketDeleted)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(auth.Bearer(sec.JWTSecret, false))
		r.Get("/", c.ListNotifications)
		r.Patch("/", c.MarkNotifications)
		r.Get("/unread-count", c.UnreadCount)
		r.Get("/preferences", c.GetPreferences)
		r.Patch("/preferences", c.UpdatePreference)
		r.Post("/push/subscribe", c.Subscribe)
		r.Delete("/push/subscribe", c.Unsubscribe)
		r.Patch("/{id}", c.MarkOne)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Bearer(sec.JWTSecret, false), auth.RequireRole(ticket.RoleAdmin))
		r.Delete("/notifications/{id}", c.DeleteNotification)
		r.Get("/notification-templates", c.ListTemplates)
		r.Put("/notification-templates", c.UpsertTemplate)
	})

	return obs.HTTPHandler(r, "dispatcher")
}

func NewHTTPServer(cfg ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
