package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salvatore0626/PiZeroMetarMap/internal/api"
	"github.com/salvatore0626/PiZeroMetarMap/internal/config"
	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
	"github.com/salvatore0626/PiZeroMetarMap/internal/websocket"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

type staticFetcher struct {
	conditions map[string]metar.Condition
	block      chan struct{} // when set, Fetch blocks until closed
}

func (f *staticFetcher) Fetch(ctx context.Context, stationIDs []string, lookback time.Duration) (map[string]metar.Condition, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.conditions, nil
}

func newTestRouter(t *testing.T, fetcher metar.Fetcher) (http.Handler, *metar.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Stations.Mapping = []string{"KPDX", "KEUG", ""}
	cfg.LED.Count = 3

	store := metar.NewStore()
	service := metar.NewService(metar.ServiceConfig{
		StationIDs:      cfg.StationIDs(),
		RefreshInterval: 10 * time.Minute,
		ErrorRetry:      time.Minute,
		Lookback:        5 * time.Hour,
	}, fetcher, store, clockwork.NewFakeClock(), nil, logger.NewNop())
	t.Cleanup(service.Stop)

	handler := api.NewHandler(service, cfg, logger.NewNop())
	router := api.NewRouter(handler, websocket.NewServer(logger.NewNop()))
	return router.Routes(), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestGetConditions(t *testing.T) {
	handler, store := newTestRouter(t, &staticFetcher{})

	at := time.Date(2024, 3, 1, 11, 53, 0, 0, time.UTC)
	store.Replace(map[string]metar.Condition{
		"KPDX": {Station: "KPDX", Category: metar.CategoryVFR, WindSpeedKt: 8, ObservedAt: at},
	}, at)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/v1/conditions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, float64(1), body["generation"])
	stations, ok := body["stations"].([]any)
	require.True(t, ok)
	require.Len(t, stations, 2, "empty mapping entries are not listed")

	first := stations[0].(map[string]any)
	assert.Equal(t, "KPDX", first["station"])
	assert.Equal(t, "VFR", first["flight_category"])
	assert.Equal(t, float64(0), first["led_index"])

	second := stations[1].(map[string]any)
	assert.Equal(t, "KEUG", second["station"])
	assert.Equal(t, "UNKNOWN", second["flight_category"], "unreported station has no category")
}

func TestGetStatus(t *testing.T) {
	handler, store := newTestRouter(t, &staticFetcher{})

	at := time.Date(2024, 3, 1, 11, 53, 0, 0, time.UTC)
	store.Replace(map[string]metar.Condition{
		"KPDX": {Station: "KPDX", Category: metar.CategoryVFR, ObservedAt: at},
	}, at)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(2), body["station_count"])
	assert.Equal(t, float64(3), body["led_count"])

	storeStatus, ok := body["store"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), storeStatus["generation"])
	assert.Equal(t, float64(1), storeStatus["stations"])
	assert.Equal(t, false, storeStatus["fetch_in_flight"])
}

func TestGetStations(t *testing.T) {
	handler, _ := newTestRouter(t, &staticFetcher{})

	rec, body := doJSON(t, handler, http.MethodGet, "/api/v1/stations")
	require.Equal(t, http.StatusOK, rec.Code)

	mapping, ok := body["mapping"].([]any)
	require.True(t, ok)
	require.Len(t, mapping, 3)

	last := mapping[2].(map[string]any)
	assert.Equal(t, float64(2), last["led_index"])
	_, hasStation := last["station"]
	assert.False(t, hasStation, "empty entries omit the station field")
}

func TestTriggerRefresh(t *testing.T) {
	block := make(chan struct{})
	handler, _ := newTestRouter(t, &staticFetcher{block: block})

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "refresh started", body["status"])

	// Second refresh while the first is still in flight
	rec, body = doJSON(t, handler, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "fetch already in flight", body["status"])

	close(block)
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestRouter(t, &staticFetcher{})

	rec, body := doJSON(t, handler, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpointMounted(t *testing.T) {
	handler, _ := newTestRouter(t, &staticFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
