package metar_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
)

func conditionsFixture(category metar.FlightCategory) map[string]metar.Condition {
	at := time.Date(2024, 3, 1, 11, 53, 0, 0, time.UTC)
	return map[string]metar.Condition{
		"KPDX": {Station: "KPDX", Category: category, ObservedAt: at},
		"KEUG": {Station: "KEUG", Category: metar.CategoryVFR, ObservedAt: at},
	}
}

func TestStore_ReplaceAndSnapshot(t *testing.T) {
	store := metar.NewStore()
	now := time.Now().UTC()

	assert.True(t, store.Empty())

	changed, generation := store.Replace(conditionsFixture(metar.CategoryVFR), now)
	assert.True(t, changed, "first replace always counts as changed")
	assert.Equal(t, uint64(1), generation)

	snapshot, generation := store.Snapshot()
	assert.Equal(t, uint64(1), generation)
	assert.Len(t, snapshot, 2)
	assert.False(t, store.Empty())

	cond, ok := store.Get("KPDX")
	require.True(t, ok)
	assert.Equal(t, metar.CategoryVFR, cond.Category)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	store := metar.NewStore()
	store.Replace(conditionsFixture(metar.CategoryVFR), time.Now().UTC())

	snapshot, _ := store.Snapshot()
	snapshot["KPDX"] = metar.Condition{Station: "KPDX", Category: metar.CategoryLIFR}

	cond, _ := store.Get("KPDX")
	assert.Equal(t, metar.CategoryVFR, cond.Category)
}

func TestStore_ChangedTracksSignature(t *testing.T) {
	store := metar.NewStore()
	now := time.Now().UTC()

	changed, _ := store.Replace(conditionsFixture(metar.CategoryVFR), now)
	assert.True(t, changed)

	changed, _ = store.Replace(conditionsFixture(metar.CategoryVFR), now.Add(time.Minute))
	assert.False(t, changed, "identical data is not a change")

	changed, _ = store.Replace(conditionsFixture(metar.CategoryIFR), now.Add(2*time.Minute))
	assert.True(t, changed)
}

func TestStore_ReplaceReturnsItsOwnGeneration(t *testing.T) {
	store := metar.NewStore()
	now := time.Now().UTC()

	for want := uint64(1); want <= 3; want++ {
		_, generation := store.Replace(conditionsFixture(metar.CategoryVFR), now)
		assert.Equal(t, want, generation)
	}

	_, generation := store.Snapshot()
	assert.Equal(t, uint64(3), generation)
}

func TestStore_FetchFailedCountsFailures(t *testing.T) {
	store := metar.NewStore()
	now := time.Now().UTC()

	assert.Equal(t, 1, store.FetchFailed(now))
	assert.Equal(t, 2, store.FetchFailed(now.Add(time.Minute)))

	store.Replace(conditionsFixture(metar.CategoryVFR), now.Add(2*time.Minute))
	assert.Equal(t, 1, store.FetchFailed(now.Add(3*time.Minute)),
		"a success resets the failure streak")
}

func TestStore_ConsumeRefreshClearsFlag(t *testing.T) {
	store := metar.NewStore()

	pending, _ := store.ConsumeRefresh()
	assert.False(t, pending)

	store.Replace(conditionsFixture(metar.CategoryVFR), time.Now().UTC())

	pending, changed := store.ConsumeRefresh()
	assert.True(t, pending)
	assert.True(t, changed)

	pending, _ = store.ConsumeRefresh()
	assert.False(t, pending, "flag is consumed exactly once")
}

func TestStore_BeginFetchSingleFlight(t *testing.T) {
	store := metar.NewStore()

	assert.True(t, store.BeginFetch())
	assert.False(t, store.BeginFetch(), "second begin while in flight must fail")

	store.FetchFailed(time.Now().UTC())
	assert.True(t, store.BeginFetch(), "guard released after failure")

	store.Replace(conditionsFixture(metar.CategoryVFR), time.Now().UTC())
	assert.True(t, store.BeginFetch(), "guard released after success")
}

func TestStore_NeedsFetch(t *testing.T) {
	refresh := 10 * time.Minute
	retry := time.Minute
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("cold start fetches immediately", func(t *testing.T) {
		store := metar.NewStore()
		assert.True(t, store.NeedsFetch(now, refresh, retry))
	})

	t.Run("never while in flight", func(t *testing.T) {
		store := metar.NewStore()
		store.BeginFetch()
		assert.False(t, store.NeedsFetch(now, refresh, retry))
	})

	t.Run("waits the refresh interval after success", func(t *testing.T) {
		store := metar.NewStore()
		store.Replace(conditionsFixture(metar.CategoryVFR), now)

		assert.False(t, store.NeedsFetch(now.Add(refresh-time.Second), refresh, retry))
		assert.True(t, store.NeedsFetch(now.Add(refresh), refresh, retry))
	})

	t.Run("retries earlier after a failure", func(t *testing.T) {
		store := metar.NewStore()
		store.Replace(conditionsFixture(metar.CategoryVFR), now)
		store.FetchFailed(now.Add(time.Minute))

		assert.False(t, store.NeedsFetch(now.Add(time.Minute+retry-time.Second), refresh, retry))
		assert.True(t, store.NeedsFetch(now.Add(time.Minute+retry), refresh, retry))
	})

	t.Run("retries earlier when a success returned nothing", func(t *testing.T) {
		store := metar.NewStore()
		store.Replace(map[string]metar.Condition{}, now)

		assert.True(t, store.NeedsFetch(now.Add(retry), refresh, retry))
	})
}

func TestStore_Stale(t *testing.T) {
	staleAfter := 30 * time.Minute
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store := metar.NewStore()
	assert.True(t, store.Stale(now, staleAfter), "never-fetched store is stale")

	store.Replace(conditionsFixture(metar.CategoryVFR), now)
	assert.False(t, store.Stale(now.Add(staleAfter-time.Second), staleAfter))
	assert.True(t, store.Stale(now.Add(staleAfter), staleAfter))
}

func TestStore_Status(t *testing.T) {
	store := metar.NewStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Replace(conditionsFixture(metar.CategoryVFR), now)
	store.FetchFailed(now.Add(10 * time.Minute))

	status := store.Status()
	assert.Equal(t, uint64(1), status.Generation)
	assert.Equal(t, 2, status.Stations)
	assert.Equal(t, now, status.LastSuccess)
	assert.Equal(t, now.Add(10*time.Minute), status.LastAttempt)
	assert.Equal(t, 1, status.Failures)
	assert.False(t, status.InFlight)
	assert.NotEmpty(t, status.Signature)
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	store := metar.NewStore()
	store.Replace(conditionsFixture(metar.CategoryVFR), time.Now().UTC())
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				store.Replace(conditionsFixture(metar.CategoryVFR), time.Now().UTC())
			}
		}()
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snapshot, _ := store.Snapshot()
				// Readers always see whole fetches, never partial ones
				assert.Len(t, snapshot, 2)
			}
		}()
	}

	wg.Wait()
}
