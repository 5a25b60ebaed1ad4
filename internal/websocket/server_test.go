package websocket_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
	"github.com/salvatore0626/PiZeroMetarMap/internal/websocket"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

func startHub(t *testing.T) (*websocket.Server, string) {
	t.Helper()

	hub := websocket.NewServer(logger.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *websocket.Server, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_BroadcastReachesAllClients(t *testing.T) {
	hub, url := startHub(t)

	conn1 := dial(t, url)
	conn2 := dial(t, url)
	waitForClients(t, hub, 2)

	hub.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeConditionsUpdated,
		Data: map[string]any{"generation": 1},
	})

	for _, conn := range []*gorilla.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, websocket.MessageTypeConditionsUpdated, msg.Type)
		assert.Equal(t, float64(1), msg.Data["generation"])
	}
}

func TestServer_DisconnectedClientUnregisters(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestConditionObserver_MessageShape(t *testing.T) {
	hub, url := startHub(t)
	observer := websocket.NewConditionObserver(hub)

	conn := dial(t, url)
	waitForClients(t, hub, 1)

	at := time.Date(2024, 3, 1, 11, 53, 0, 0, time.UTC)
	observer.ConditionsUpdated(map[string]metar.Condition{
		"KPDX": {Station: "KPDX", Category: metar.CategoryMVFR, WindSpeedKt: 18, ObservedAt: at},
	}, true, 420*time.Millisecond, 7)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.MessageTypeConditionsUpdated, msg.Type)
	assert.Equal(t, true, msg.Data["changed"])
	assert.Equal(t, float64(420), msg.Data["duration_ms"])
	assert.Equal(t, float64(7), msg.Data["generation"])

	stations, ok := msg.Data["stations"].(map[string]any)
	require.True(t, ok)
	kpdx := stations["KPDX"].(map[string]any)
	assert.Equal(t, "MVFR", kpdx["flight_category"])
	assert.Equal(t, float64(18), kpdx["wind_speed_kt"])
}

func TestConditionObserver_BroadcastsFetchFailures(t *testing.T) {
	hub, url := startHub(t)
	observer := websocket.NewConditionObserver(hub)

	conn := dial(t, url)
	waitForClients(t, hub, 1)

	observer.FetchFailed(errors.New("api down"), 3)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.MessageTypeFetchFailed, msg.Type)
	assert.Equal(t, "api down", msg.Data["error"])
	assert.Equal(t, float64(3), msg.Data["consecutive_failures"])
}
