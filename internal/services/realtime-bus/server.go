package bus

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	SendBuffer      int           `mapstructure:"send_buffer"`
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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.With(auth.Bearer(sec.JWTSecret, true)).Get("/ws", c.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(auth.InternalKey(sec.InternalAPIKey))
		r.Post("/internal/emit-event", c.EmitEvent)
		r.Get("/internal/stats", c.Stats)
	})
	return obs.HTTPHandler(r, "realtime-bus")
}

// NewHTTPServer leaves WriteTimeout unset; websocket connections are long-lived.
func NewHTTPServer(cfg ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
