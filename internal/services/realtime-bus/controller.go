package bus

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type emitReq struct {
	Event string   `json:"event" validate:"required,oneof=notification:new ticket:created ticket:updated ticket:deleted"`
	Data  any      `json:"data"`
	Rooms []string `json:"rooms" validate:"required,min=1,dive,required"`
}

type Controller struct {
	bus        *Bus
	hub        *Hub
	upgrader   websocket.Upgrader
	sendBuffer int
	log        *zap.Logger
}

type ControllerConfig struct {
	// AllowedOrigins limits websocket handshakes; empty accepts any origin.
	AllowedOrigins []string
	SendBuffer     int
}

func NewController(b *Bus, hub *Hub, cfg ControllerConfig, log *zap.Logger) *Controller {
	return &Controller{
		bus: b,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		sendBuffer: cfg.SendBuffer,
		log:        obs.Component(log, "bus.http"),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// EmitEvent fans the event out locally and answers 202 without waiting for
// clients or the backbone.
func (c *Controller) EmitEvent(w http.ResponseWriter, r *http.Request) {
	var req emitReq
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeErr(w, http.StatusBadRequest, "empty body")
			return
		}
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.bus.Emit(r.Context(), req.Event, req.Data, req.Rooms); err != nil {
		obs.WithTrace(r.Context(), c.log).Error("emit failed", zap.String("event", req.Event), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (c *Controller) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"connections": c.hub.Connections()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
