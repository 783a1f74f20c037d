package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railpay/paymentsd/internal/core/engine"
)

func dialTestHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketRPCCommand(t *testing.T) {
	svc, _ := newTestService(t)
	hub := NewWebSocketServer(NewServer(svc), 16)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialTestHub(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"command": "server_info",
		"id":      7,
	}))

	msg := readMessage(t, conn)
	var status string
	require.NoError(t, json.Unmarshal(msg["status"], &status))
	assert.Equal(t, "success", status)

	var info serverInfoResult
	require.NoError(t, json.Unmarshal(msg["result"], &info))
	assert.Equal(t, "test", info.Version)

	var id int
	require.NoError(t, json.Unmarshal(msg["id"], &id))
	assert.Equal(t, 7, id)
}

func TestWebSocketUnknownCommand(t *testing.T) {
	svc, _ := newTestService(t)
	hub := NewWebSocketServer(NewServer(svc), 16)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialTestHub(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"command": "bogus",
		"id":      1,
	}))

	msg := readMessage(t, conn)
	var status string
	require.NoError(t, json.Unmarshal(msg["status"], &status))
	assert.Equal(t, "error", status)

	var code int
	require.NoError(t, json.Unmarshal(msg["error_code"], &code))
	assert.Equal(t, CodeMethodNotFound, code)
}

func TestWebSocketSubscribeReceivesEvents(t *testing.T) {
	hub := NewWebSocketServer(nil, 16)

	var e *engine.Engine
	publisher := NewPublisher(hub, func() uint64 { return e.CurrentEpoch() }, 16)
	e = engine.New(engine.DefaultConfig(), engine.WithSink(publisher))
	e.Custody().Mint(tokUSD, alice, big.NewInt(10_000))
	hub.SetHandler(NewServer(NewService(e, 16)))

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go publisher.Run(ctx)

	conn := dialTestHub(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"command": "subscribe",
		"id":      1,
		"streams": []string{StreamAll},
	}))
	msg := readMessage(t, conn)
	var status string
	require.NoError(t, json.Unmarshal(msg["status"], &status))
	require.Equal(t, "success", status)

	_, err := e.Deposit(alice, tokUSD, alice, big.NewInt(500))
	require.NoError(t, err)

	msg = readMessage(t, conn)
	var msgType, kind string
	require.NoError(t, json.Unmarshal(msg["type"], &msgType))
	require.NoError(t, json.Unmarshal(msg["kind"], &kind))
	assert.Equal(t, "event", msgType)
	assert.Equal(t, "account.deposit", kind)

	var payload engine.DepositEvent
	require.NoError(t, json.Unmarshal(msg["payload"], &payload))
	assert.Equal(t, "500", payload.Amount.String())
}

func TestWebSocketStreamFiltering(t *testing.T) {
	svc, _ := newTestService(t)
	hub := NewWebSocketServer(NewServer(svc), 16)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialTestHub(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"command": "subscribe",
		"id":      1,
		"streams": []string{"rail.settled"},
	}))
	readMessage(t, conn)

	// Wait until the subscription is registered before broadcasting.
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("account.deposit", []byte(`{"type":"event","kind":"account.deposit"}`))
	hub.Broadcast("rail.settled", []byte(`{"type":"event","kind":"rail.settled"}`))

	// Only the subscribed kind arrives.
	msg := readMessage(t, conn)
	var kind string
	require.NoError(t, json.Unmarshal(msg["kind"], &kind))
	assert.Equal(t, "rail.settled", kind)
}

func TestWebSocketCategoryStreams(t *testing.T) {
	svc, _ := newTestService(t)
	hub := NewWebSocketServer(NewServer(svc), 16)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialTestHub(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"command": "subscribe",
		"id":      1,
		"streams": []string{"rails"},
	}))
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("fees.burned", []byte(`{"type":"event","kind":"fees.burned"}`))
	hub.Broadcast("rail.created", []byte(`{"type":"event","kind":"rail.created"}`))

	// The "rails" stream covers every rail.* kind and nothing else.
	msg := readMessage(t, conn)
	var kind string
	require.NoError(t, json.Unmarshal(msg["kind"], &kind))
	assert.Equal(t, "rail.created", kind)
}
