package render

import (
	"math"
	"time"

	"github.com/salvatore0626/PiZeroMetarMap/internal/led"
	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
)

// phasePrime spreads station identifiers across [0, 1) for animation
// phase offsets. 251 is the largest prime below a byte boundary, which
// keeps the modulo well distributed over short ASCII identifiers.
const phasePrime = 251

// Phase derives a stable pseudo-phase in [0, 1) from a station
// identifier. It is a pure function of the identifier, not a seeded RNG,
// so phase offsets survive restarts.
func Phase(station string) float64 {
	sum := 0
	for i := 0; i < len(station); i++ {
		sum += int(station[i])
	}
	return float64(sum%phasePrime) / phasePrime
}

// AnimationConfig contains the hazard animation parameters
type AnimationConfig struct {
	WindEnabled           bool
	LightningEnabled      bool
	Fade                  bool // blend between colors instead of hard on/off
	BlinkPeriod           time.Duration
	WindThresholdKt       int
	AlwaysAnimateForGusts bool
	HighWindSolidKt       int // -1 disables the solid high-wind override
	LightningPeriod       time.Duration
	FlashFraction         float64
	DecayFraction         float64
	PhaseSpread           float64
}

// Animator turns a Condition plus elapsed monotonic time into a color,
// applying the priority-ordered hazard rules:
// no data > lightning > very-high wind (solid) > wind animation > base.
type Animator struct {
	config  AnimationConfig
	palette Palette
}

// NewAnimator creates an Animator
func NewAnimator(config AnimationConfig, palette Palette) *Animator {
	return &Animator{config: config, palette: palette}
}

// Palette returns the animator's palette
func (a *Animator) Palette() Palette {
	return a.palette
}

// ColorFor resolves the color for one station at the given elapsed time.
// A nil condition means no recent report for the station.
func (a *Animator) ColorFor(cond *metar.Condition, station string, elapsed time.Duration) led.Color {
	if cond == nil {
		return a.palette.NoData
	}

	base := a.palette.Base(cond.Category)

	if a.config.LightningEnabled && cond.Lightning {
		alpha := a.lightningAlpha(elapsed, Phase(station))
		return Blend(base, a.palette.Lightning, alpha)
	}

	if a.veryHighWind(cond) {
		return a.palette.HighWind
	}

	if a.windShouldAnimate(cond) {
		alpha := a.windAlpha(elapsed, Phase(station))
		return Blend(base, a.palette.HighWind, alpha)
	}

	return base
}

// StaticColorFor resolves the color with hazard animation suppressed,
// used while a refresh transition owns the strip. The solid very-high-wind
// override is static and therefore kept.
func (a *Animator) StaticColorFor(cond *metar.Condition) led.Color {
	if cond == nil {
		return a.palette.NoData
	}
	if a.veryHighWind(cond) {
		return a.palette.HighWind
	}
	return a.palette.Base(cond.Category)
}

func (a *Animator) veryHighWind(cond *metar.Condition) bool {
	if a.config.HighWindSolidKt < 0 {
		return false
	}
	return cond.MaxWindKt() >= a.config.HighWindSolidKt
}

func (a *Animator) windShouldAnimate(cond *metar.Condition) bool {
	if !a.config.WindEnabled {
		return false
	}
	if a.config.AlwaysAnimateForGusts && cond.WindGustKt > 0 {
		return true
	}
	return cond.MaxWindKt() >= a.config.WindThresholdKt
}

// windAlpha computes the wind oscillation: a triangular 0..1..0 sweep over
// the blink period in fade mode, a 50% duty on/off gate otherwise. The
// station phase shifts the cycle by up to PhaseSpread of the period.
func (a *Animator) windAlpha(elapsed time.Duration, phase float64) float64 {
	pos := cyclePosition(elapsed, a.config.BlinkPeriod, phase*a.config.PhaseSpread)
	tri := 1 - math.Abs(2*pos-1)
	if a.config.Fade {
		return tri
	}
	if tri >= 0.5 {
		return 1
	}
	return 0
}

// lightningAlpha computes the lightning cycle: a full-intensity flash
// window, a linear decay back to zero, then a zero hold until the next
// period. Blink mode skips the decay.
func (a *Animator) lightningAlpha(elapsed time.Duration, phase float64) float64 {
	pos := cyclePosition(elapsed, a.config.LightningPeriod, phase*a.config.PhaseSpread)
	switch {
	case pos < a.config.FlashFraction:
		return 1
	case a.config.Fade && pos < a.config.FlashFraction+a.config.DecayFraction:
		return 1 - (pos-a.config.FlashFraction)/a.config.DecayFraction
	default:
		return 0
	}
}

// cyclePosition maps elapsed time onto [0, 1) within the period, shifted
// by the phase offset fraction.
func cyclePosition(elapsed, period time.Duration, offset float64) float64 {
	if period <= 0 {
		return 0
	}
	shifted := elapsed + time.Duration(offset*float64(period))
	pos := math.Mod(float64(shifted)/float64(period), 1)
	if pos < 0 {
		pos += 1
	}
	return pos
}
