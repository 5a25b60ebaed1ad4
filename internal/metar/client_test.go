package metar_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

func newTestClient(baseURL string, maxRetries, maxBatchSize int) *metar.Client {
	return metar.NewClient(metar.ClientConfig{
		BaseURL:        baseURL,
		UserAgent:      "metarmap-test",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     maxRetries,
		MaxBatchSize:   maxBatchSize,
	}, logger.NewNop())
}

func TestClient_FetchParsesAndDeduplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/metar", r.URL.Path)
		assert.Equal(t, "KEUG,KPDX", r.URL.Query().Get("ids"))
		assert.Equal(t, "5", r.URL.Query().Get("hours"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "metarmap-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"icaoId": "KPDX", "fltCat": "IFR", "obsTime": 1709290000},
			{"icaoId": "KPDX", "fltCat": "VFR", "obsTime": 1709293600},
			{"icaoId": "KEUG", "fltCat": "MVFR", "wspd": 12, "obsTime": 1709293600}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, 150)

	conditions, err := client.Fetch(context.Background(), []string{"kpdx", "KEUG", "KPDX"}, 5*time.Hour)
	require.NoError(t, err)
	require.Len(t, conditions, 2)
	assert.Equal(t, metar.CategoryVFR, conditions["KPDX"].Category, "newest observation wins")
	assert.Equal(t, 12, conditions["KEUG"].WindSpeedKt)
}

func TestClient_FetchEmptyStationList(t *testing.T) {
	client := newTestClient("http://unused.invalid", 0, 150)

	conditions, err := client.Fetch(context.Background(), nil, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, conditions)
}

func TestClient_NoContentMeansNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, 150)

	conditions, err := client.Fetch(context.Background(), []string{"KPDX"}, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, conditions)
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"icaoId": "KPDX", "fltCat": "VFR"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2, 150)

	conditions, err := client.Fetch(context.Background(), []string{"KPDX"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, conditions, "KPDX")
}

func TestClient_ExhaustedRetriesFail(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1, 150)

	_, err := client.Fetch(context.Background(), []string{"KPDX"}, time.Hour)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "initial attempt plus one retry")
}

func TestClient_ChunksLargeStationLists(t *testing.T) {
	var gotIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = append(gotIDs, r.URL.Query().Get("ids"))
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, 2)

	_, err := client.Fetch(context.Background(), []string{"KPDX", "KEUG", "KSLE"}, time.Hour)
	require.NoError(t, err)
	require.Len(t, gotIDs, 2)
	assert.Equal(t, "KEUG,KPDX", gotIDs[0])
	assert.Equal(t, "KSLE", gotIDs[1])
}

func TestClient_ContextCancellationAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, 150)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, []string{"KPDX"}, time.Hour)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "Client.Timeout"))
}
