package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
)

var _ realtime.Emitter = (*BusEmitter)(nil)

// BusEmitter calls the realtime bus over HTTP. Calls are never retried.
type BusEmitter struct {
	url    string
	apiKey string
	client *http.Client
}

func NewBusEmitter(baseURL, apiKey string, timeout time.Duration) *BusEmitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BusEmitter{
		url:    strings.TrimRight(baseURL, "/") + "/internal/emit-event",
		apiKey: apiKey,
		client: obs.HTTPClient(timeout),
	}
}

type emitRequest struct {
	Event string   `json:"event"`
	Data  any      `json:"data"`
	Rooms []string `json:"rooms"`
}

func (e *BusEmitter) Emit(ctx context.Context, event string, data any, rooms []string) error {
	body, err := json.Marshal(emitRequest{Event: event, Data: data, Rooms: rooms})
	if err != nil {
		return fmt.Errorf("marshal emit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.InternalKeyHeader, e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("emit %s: bus responded %d", event, resp.StatusCode)
	}
	return nil
}
