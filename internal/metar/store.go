package metar

import (
	"sync"
	"time"
)

// Store holds the current per-station Conditions behind a mutex. Updates
// are wholesale map replacements, never incremental mutation, so a reader
// snapshot is always internally consistent. It also carries the scalar
// bookkeeping the fetch service and renderer rendezvous through: last
// attempt/success times, the single-flight guard, and the refresh-pending
// flag that triggers the transition animation.
type Store struct {
	mu sync.RWMutex

	conditions map[string]Condition
	signature  string
	generation uint64

	lastSuccess    time.Time
	lastAttempt    time.Time
	inFlight       bool
	refreshPending bool
	lastChanged    bool
	failures       int
}

// StoreStatus is a point-in-time view of the Store's bookkeeping
type StoreStatus struct {
	Generation  uint64    `json:"generation"`
	Stations    int       `json:"stations"`
	LastSuccess time.Time `json:"last_success"`
	LastAttempt time.Time `json:"last_attempt"`
	InFlight    bool      `json:"fetch_in_flight"`
	Failures    int       `json:"consecutive_failures"`
	Signature   string    `json:"signature"`
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{conditions: map[string]Condition{}}
}

// Snapshot returns a copy of the current conditions and the generation
// counter that produced them.
func (s *Store) Snapshot() (map[string]Condition, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]Condition, len(s.conditions))
	for id, c := range s.conditions {
		snapshot[id] = c
	}
	return snapshot, s.generation
}

// Get returns the Condition for one station
func (s *Store) Get(station string) (Condition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conditions[station]
	return c, ok
}

// Empty reports whether the Store holds no conditions
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conditions) == 0
}

// Replace swaps in a freshly fetched condition map in one atomic step and
// clears the in-flight guard. It returns whether the change signature
// differs from the previous fetch (or this is the first fetch ever) and the
// generation the swap produced, read under the same lock so a racing fetch
// cannot skew either value.
func (s *Store) Replace(conditions map[string]Condition, at time.Time) (changed bool, generation uint64) {
	signature := Signature(conditions)

	s.mu.Lock()
	defer s.mu.Unlock()

	changed = s.generation == 0 || signature != s.signature
	s.conditions = conditions
	s.signature = signature
	s.generation++
	s.lastSuccess = at
	s.lastAttempt = at
	s.failures = 0
	s.inFlight = false
	s.refreshPending = true
	s.lastChanged = changed
	return changed, s.generation
}

// BeginFetch sets the single-flight guard. It returns false when a fetch
// is already in flight.
func (s *Store) BeginFetch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

// FetchFailed records a failed attempt, leaving the conditions untouched,
// and returns the consecutive failure count.
func (s *Store) FetchFailed(at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAttempt = at
	s.failures++
	s.inFlight = false
	return s.failures
}

// NeedsFetch reports whether a new fetch should be started: never while
// one is in flight, immediately on cold start, after errorRetry when the
// last attempt failed or returned nothing, otherwise after the normal
// refresh interval.
func (s *Store) NeedsFetch(now time.Time, refreshInterval, errorRetry time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.inFlight {
		return false
	}
	if s.lastAttempt.IsZero() {
		return true
	}
	wait := refreshInterval
	if s.failures > 0 || len(s.conditions) == 0 {
		wait = errorRetry
	}
	return now.Sub(s.lastAttempt) >= wait
}

// ConsumeRefresh returns and clears the refresh-pending flag along with
// whether that refresh carried meaningful changes. The renderer calls this
// once per frame to decide whether to run the transition animation.
func (s *Store) ConsumeRefresh() (pending, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending = s.refreshPending
	changed = s.lastChanged
	s.refreshPending = false
	return pending, changed
}

// Stale reports whether the data is older than staleAfter (or was never
// fetched at all).
func (s *Store) Stale(now time.Time, staleAfter time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.generation == 0 {
		return true
	}
	return now.Sub(s.lastSuccess) >= staleAfter
}

// Status returns the Store's bookkeeping for the status API
func (s *Store) Status() StoreStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStatus{
		Generation:  s.generation,
		Stations:    len(s.conditions),
		LastSuccess: s.lastSuccess,
		LastAttempt: s.lastAttempt,
		InFlight:    s.inFlight,
		Failures:    s.failures,
		Signature:   s.signature,
	}
}
