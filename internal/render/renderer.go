package render

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/salvatore0626/PiZeroMetarMap/internal/led"
	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
	"github.com/salvatore0626/PiZeroMetarMap/internal/observability"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

// Transition styles rendered when a fetch completes
const (
	TransitionRiver = "river"
	TransitionFade  = "fade"
	TransitionNone  = "none"
)

// heartbeatColor is the dim pulse shown on the heartbeat LED while the
// store is stale.
var heartbeatColor = led.Color{R: 20, G: 20, B: 20}

// RendererConfig contains the frame loop parameters
type RendererConfig struct {
	Mapping               []string // LED index -> station id ("" = unassigned)
	FrameRate             int
	RefreshTransition     string
	RiverStep             time.Duration
	FadeDuration          time.Duration
	SuppressDuringRefresh bool
	HeartbeatIndex        int // -1 disables the stale heartbeat
	StaleAfter            time.Duration
}

// Renderer runs the single-threaded frame loop: every frame it triggers
// the fetch service if a refresh is due, snapshots the condition store,
// resolves each LED through the station mapping and color rules, and
// commits the frame to the strip. It never blocks on network I/O.
type Renderer struct {
	config   RendererConfig
	strip    led.Strip
	animator *Animator
	service  *metar.Service
	store    *metar.Store
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *logger.Logger

	origin        time.Time
	frameInterval time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRenderer creates a renderer. A mapping length different from the
// physical LED count is tolerated: only the overlap renders, and the
// mismatch is warned once here.
func NewRenderer(
	config RendererConfig,
	strip led.Strip,
	animator *Animator,
	service *metar.Service,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Renderer {
	log = log.Named("renderer")

	if len(config.Mapping) != strip.Count() {
		log.Warn("Station mapping length differs from LED count, using the overlap",
			logger.Int("mapping_entries", len(config.Mapping)),
			logger.Int("led_count", strip.Count()))
	}

	return &Renderer{
		config:        config,
		strip:         strip,
		animator:      animator,
		service:       service,
		store:         service.Store(),
		clock:         clock,
		metrics:       metrics,
		logger:        log,
		origin:        clock.Now(),
		frameInterval: time.Second / time.Duration(config.FrameRate),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the frame loop
func (r *Renderer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	r.logger.Info("Starting render loop",
		logger.Int("led_count", r.strip.Count()),
		logger.Int("mapping_entries", len(r.config.Mapping)),
		logger.Int("frame_rate_hz", r.config.FrameRate),
		logger.String("refresh_transition", r.config.RefreshTransition))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run()
	}()
}

// Stop terminates the frame loop and blanks the strip
func (r *Renderer) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.blank()
	r.logger.Info("Render loop stopped")
}

func (r *Renderer) run() {
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		r.service.TriggerIfNeeded()

		if pending, changed := r.store.ConsumeRefresh(); pending {
			r.runTransition(changed)
		} else {
			r.renderFrame()
		}

		if !r.sleep(r.frameInterval) {
			return
		}
	}
}

// renderFrame renders one live frame with hazard animation
func (r *Renderer) renderFrame() {
	snapshot, _ := r.store.Snapshot()
	elapsed := r.clock.Since(r.origin)

	for i := 0; i < r.strip.Count(); i++ {
		r.strip.Set(i, r.colorAt(i, snapshot, elapsed, false))
	}

	stale := r.store.Stale(r.clock.Now(), r.config.StaleAfter)
	if r.metrics != nil {
		if stale {
			r.metrics.StoreStale.Set(1)
		} else {
			r.metrics.StoreStale.Set(0)
		}
	}
	r.overlayHeartbeat(elapsed, stale)
	r.commit()
}

// colorAt resolves one LED position to its color. LEDs beyond the mapping
// are forced off; mapped stations without a condition render no-data.
func (r *Renderer) colorAt(index int, snapshot map[string]metar.Condition, elapsed time.Duration, suppressEffects bool) led.Color {
	if index >= len(r.config.Mapping) {
		return led.Off
	}

	station := r.config.Mapping[index]
	var cond *metar.Condition
	if station != "" {
		if c, ok := snapshot[station]; ok {
			cond = &c
		}
	}

	if suppressEffects {
		return r.animator.StaticColorFor(cond)
	}
	return r.animator.ColorFor(cond, station, elapsed)
}

// overlayHeartbeat blinks the configured heartbeat LED at 1 Hz, 50% duty,
// while the store data is stale.
func (r *Renderer) overlayHeartbeat(elapsed time.Duration, stale bool) {
	idx := r.config.HeartbeatIndex
	if idx < 0 || idx >= r.strip.Count() || !stale {
		return
	}

	if elapsed/(500*time.Millisecond)%2 == 0 {
		r.strip.Set(idx, heartbeatColor)
	} else {
		r.strip.Set(idx, led.Off)
	}
}

// runTransition renders the refresh visual. A refresh whose change
// signature matched the previous fetch skips the river (re-revealing
// unchanged data reads as noise) and shallows the fade.
func (r *Renderer) runTransition(changed bool) {
	switch r.config.RefreshTransition {
	case TransitionRiver:
		if !changed {
			r.renderFrame()
			return
		}
		r.river()
	case TransitionFade:
		r.fade(changed)
	default:
		r.renderFrame()
	}
}

// river sweeps the strip dark and reveals each LED in sequence at its
// resolved target color.
func (r *Renderer) river() {
	snapshot, _ := r.store.Snapshot()
	elapsed := r.clock.Since(r.origin)

	targets := make([]led.Color, r.strip.Count())
	for i := range targets {
		targets[i] = r.colorAt(i, snapshot, elapsed, r.config.SuppressDuringRefresh)
	}

	// Sweep off
	for i := 0; i < r.strip.Count(); i++ {
		r.strip.Set(i, led.Off)
	}
	r.commit()
	if !r.sleep(r.config.RiverStep) {
		return
	}

	// Reveal left to right
	const substeps = 3
	for i := 0; i < r.strip.Count(); i++ {
		for step := 1; step <= substeps; step++ {
			r.strip.Set(i, Blend(led.Off, targets[i], float64(step)/substeps))
			r.commit()
			if !r.sleep(r.config.RiverStep / substeps) {
				return
			}
		}
	}
}

// fade ramps the whole strip down and back up to its target colors. An
// unchanged refresh only dips halfway so it reads as a pulse, not a reload.
func (r *Renderer) fade(changed bool) {
	snapshot, _ := r.store.Snapshot()
	elapsed := r.clock.Since(r.origin)

	targets := make([]led.Color, r.strip.Count())
	for i := range targets {
		targets[i] = r.colorAt(i, snapshot, elapsed, r.config.SuppressDuringRefresh)
	}

	floor := 0.0
	if !changed {
		floor = 0.5
	}

	steps := int(r.config.FadeDuration / r.frameInterval)
	if steps < 2 {
		steps = 2
	}

	// Fade out to the floor, then back in
	for step := 0; step <= 2*steps; step++ {
		var level float64
		if step <= steps {
			level = 1 - (1-floor)*float64(step)/float64(steps)
		} else {
			level = floor + (1-floor)*float64(step-steps)/float64(steps)
		}
		for i := range targets {
			r.strip.Set(i, Blend(led.Off, targets[i], level))
		}
		r.commit()
		if !r.sleep(r.frameInterval) {
			return
		}
	}
}

// commit pushes the frame; hardware hiccups are logged, never fatal
func (r *Renderer) commit() {
	if err := r.strip.Commit(); err != nil {
		if r.metrics != nil {
			r.metrics.LEDCommitErrors.Inc()
		}
		r.logger.Warn("LED strip commit failed", logger.Error(err))
		return
	}
	if r.metrics != nil {
		r.metrics.FramesTotal.Inc()
	}
}

// blank forces every LED off (used on shutdown)
func (r *Renderer) blank() {
	for i := 0; i < r.strip.Count(); i++ {
		r.strip.Set(i, led.Off)
	}
	if err := r.strip.Commit(); err != nil {
		r.logger.Warn("Failed to blank LED strip", logger.Error(err))
	}
}

// sleep waits for the given duration on the injected clock, returning
// false when the renderer is stopping.
func (r *Renderer) sleep(d time.Duration) bool {
	select {
	case <-r.stopCh:
		return false
	case <-r.clock.After(d):
		return true
	}
}
