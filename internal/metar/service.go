package metar

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/salvatore0626/PiZeroMetarMap/internal/observability"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

// Fetcher is the external weather collaborator contract
type Fetcher interface {
	Fetch(ctx context.Context, stationIDs []string, lookback time.Duration) (map[string]Condition, error)
}

// RefreshObserver is notified after every successful store replacement,
// outside the store lock.
type RefreshObserver interface {
	ConditionsUpdated(conditions map[string]Condition, changed bool, duration time.Duration, generation uint64)
}

// FailureObserver is an optional extension a RefreshObserver can implement
// to also hear about failed fetch attempts.
type FailureObserver interface {
	FetchFailed(err error, consecutiveFailures int)
}

// ServiceConfig contains the fetch scheduling parameters
type ServiceConfig struct {
	StationIDs      []string
	RefreshInterval time.Duration
	ErrorRetry      time.Duration
	Lookback        time.Duration
	WindThresholdKt int // for the high-wind gauge; 0 disables it
}

// Service owns the background fetch task. Fetches run in their own
// goroutine, guarded so at most one is in flight, and rendezvous with the
// render loop only through the Store.
type Service struct {
	config    ServiceConfig
	fetcher   Fetcher
	store     *Store
	clock     clockwork.Clock
	logger    *logger.Logger
	metrics   *observability.Metrics
	observers []RefreshObserver

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new fetch service
func NewService(config ServiceConfig, fetcher Fetcher, store *Store, clock clockwork.Clock, metrics *observability.Metrics, log *logger.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:  config,
		fetcher: fetcher,
		store:   store,
		clock:   clock,
		metrics: metrics,
		logger:  log.Named("metar-service"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddObserver registers a refresh observer. Must be called before the
// first fetch is triggered.
func (s *Service) AddObserver(observer RefreshObserver) {
	s.observers = append(s.observers, observer)
}

// Store returns the condition store the service feeds
func (s *Service) Store() *Store {
	return s.store
}

// TriggerIfNeeded starts a background fetch when the store is empty, the
// refresh interval has elapsed, or an earlier error retry is due. Called
// from the render loop every frame; returns true when a fetch was started.
func (s *Service) TriggerIfNeeded() bool {
	if !s.store.NeedsFetch(s.clock.Now(), s.config.RefreshInterval, s.config.ErrorRetry) {
		return false
	}
	return s.startFetch()
}

// RefreshNow forces a fetch regardless of schedule, still under the
// single-flight guard. Returns false when a fetch is already in flight.
func (s *Service) RefreshNow() bool {
	s.logger.Info("Manual refresh triggered")
	return s.startFetch()
}

// Stop cancels the service context. An in-flight fetch is abandoned, per
// the daemon shutdown model; cancellation unwinds its HTTP request.
func (s *Service) Stop() {
	s.cancel()
}

func (s *Service) startFetch() bool {
	if !s.store.BeginFetch() {
		return false
	}
	go s.doFetch()
	return true
}

func (s *Service) doFetch() {
	start := s.clock.Now()

	s.logger.Debug("Fetching METARs",
		logger.Int("stations", len(s.config.StationIDs)),
		logger.Duration("lookback", s.config.Lookback))

	conditions, err := s.fetcher.Fetch(s.ctx, s.config.StationIDs, s.config.Lookback)
	if err != nil {
		// Keep the previous conditions; the store schedules an earlier retry
		failures := s.store.FetchFailed(s.clock.Now())
		if s.metrics != nil {
			s.metrics.FetchesTotal.WithLabelValues("failure").Inc()
		}
		s.logger.Warn("METAR fetch failed, keeping previous data",
			logger.Error(err),
			logger.Int("consecutive_failures", failures),
			logger.Duration("retry_in", s.config.ErrorRetry))
		for _, observer := range s.observers {
			if fo, ok := observer.(FailureObserver); ok {
				fo.FetchFailed(err, failures)
			}
		}
		return
	}

	duration := s.clock.Now().Sub(start)
	changed, generation := s.store.Replace(conditions, s.clock.Now())

	if s.metrics != nil {
		s.metrics.FetchesTotal.WithLabelValues("success").Inc()
		s.metrics.FetchDuration.Observe(duration.Seconds())
		s.metrics.StationsReporting.Set(float64(len(conditions)))
		lightning, highWind := 0, 0
		for _, c := range conditions {
			if c.Lightning {
				lightning++
			}
			if s.config.WindThresholdKt > 0 && c.MaxWindKt() >= s.config.WindThresholdKt {
				highWind++
			}
		}
		s.metrics.LightningStations.Set(float64(lightning))
		s.metrics.HighWindStations.Set(float64(highWind))
	}

	if missing := s.missingStations(conditions); len(missing) > 0 {
		s.logger.Info("No recent METAR for some stations",
			logger.Strings("stations", missing))
	}

	s.logger.Info("METARs updated",
		logger.Int("stations", len(conditions)),
		logger.Bool("changed", changed),
		logger.Duration("duration", duration))

	for _, observer := range s.observers {
		observer.ConditionsUpdated(conditions, changed, duration, generation)
	}
}

func (s *Service) missingStations(conditions map[string]Condition) []string {
	var missing []string
	for _, id := range s.config.StationIDs {
		if _, ok := conditions[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
