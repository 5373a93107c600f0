//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/triggerclient"
)

func dialBus(t *testing.T, cfg Cfg, userID int64, role ticket.Role) *websocket.Conn {
	t.Helper()
	token, err := auth.SignedString(auth.Identity{UserID: userID, Role: role}, time.Minute, []byte(cfg.JWTSecret))
	require.NoError(t, err)

	u, err := url.Parse(cfg.BusURL)
	require.NoError(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestTicketAssigned_NotifiesAssigneeEverywhere(t *testing.T) {
	cfg := LoadCfg()
	MailhogPurge(t, cfg.MailhogAPI)
	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	customer, agent, ticketID := RandID(), RandID()+1, RandID()+2
	SeedUser(t, db, customer, "Carla", fmt.Sprintf("c-%d@example.com", customer), string(ticket.RoleCustomer))
	SeedUser(t, db, agent, "Aldo", fmt.Sprintf("a-%d@example.com", agent), string(ticket.RoleAgent))
	number := SeedTicket(t, db, ticketID, customer, &agent)

	ws := dialBus(t, cfg, agent, ticket.RoleAgent)

	client := triggerclient.New(triggerclient.Config{BaseURL: cfg.DispatcherURL, APIKey: cfg.InternalAPIKey}, zap.NewNop())
	res, err := client.TicketAssigned(context.Background(), ticketID, nil)
	require.NoError(t, err)
	require.Len(t, res.NotificationIDs, 1)
	assert.Equal(t, 1, CountNotifications(t, db, agent, ticketID))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))
	var got struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	for got.Event != realtime.EventNotificationNew {
		require.NoError(t, ws.ReadJSON(&got))
	}
	assert.Contains(t, string(got.Data), number)

	WaitTaskStatus(t, db, agent, "EMAIL", "DELIVERED", 30*time.Second)
	rep := WaitMailhogCount(t, cfg.MailhogAPI, 1, 10*time.Second)
	require.NotEmpty(t, rep.Items)
	assert.Contains(t, rep.Items[0].Content.Headers["To"][0], fmt.Sprintf("a-%d@example.com", agent))
}

func TestTrigger_IdempotencyKeyDeduplicates(t *testing.T) {
	cfg := LoadCfg()
	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	customer, ticketID := RandID(), RandID()+1
	SeedUser(t, db, customer, "Carla", fmt.Sprintf("c-%d@example.com", customer), string(ticket.RoleCustomer))
	SeedTicket(t, db, ticketID, customer, nil)

	headers := map[string]string{auth.InternalKeyHeader: cfg.InternalAPIKey, "Idempotency-Key": fmt.Sprintf("it-%d", ticketID)}
	body := map[string]any{"ticketId": ticketID}
	endpoint := cfg.DispatcherURL + "/internal/trigger/ticket-created"

	HTTPDoJSON(t, http.MethodPost, endpoint, body, headers, http.StatusOK)
	raw := HTTPDoJSON(t, http.MethodPost, endpoint, body, headers, http.StatusOK)
	assert.JSONEq(t, `{"notificationIds":[],"deduplicated":true}`, string(raw))
	assert.Equal(t, 1, CountNotifications(t, db, customer, ticketID))
}

func TestTrigger_RejectsWrongInternalKey(t *testing.T) {
	cfg := LoadCfg()
	HTTPDoJSON(t, http.MethodPost, cfg.DispatcherURL+"/internal/trigger/ticket-created",
		map[string]any{"ticketId": 1}, map[string]string{auth.InternalKeyHeader: "nope"}, http.StatusUnauthorized)
}
