package render

import (
	"github.com/salvatore0626/PiZeroMetarMap/internal/led"
	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
)

// Blend linearly interpolates between two colors per channel. alpha is
// clamped to [0, 1] and channel values truncate toward zero.
func Blend(c1, c2 led.Color, alpha float64) led.Color {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return led.Color{
		R: uint8(float64(c1.R)*(1-alpha) + float64(c2.R)*alpha),
		G: uint8(float64(c1.G)*(1-alpha) + float64(c2.G)*alpha),
		B: uint8(float64(c1.B)*(1-alpha) + float64(c2.B)*alpha),
	}
}

// Palette holds the flight-category and hazard colors
type Palette struct {
	VFR       led.Color
	MVFR      led.Color
	IFR       led.Color
	LIFR      led.Color
	Clear     led.Color
	Lightning led.Color
	HighWind  led.Color
	NoData    led.Color
}

// DefaultPalette returns the colors the original map hardware shipped with
func DefaultPalette() Palette {
	return Palette{
		VFR:       led.Color{G: 255},
		MVFR:      led.Color{B: 255},
		IFR:       led.Color{R: 255},
		LIFR:      led.Color{R: 255, B: 255},
		Clear:     led.Color{},
		Lightning: led.Color{R: 255, G: 255, B: 255},
		HighWind:  led.Color{R: 255, G: 255},
		NoData:    led.Color{R: 5, G: 5, B: 5},
	}
}

// Base returns the flight-category color; uncategorized stations render Clear
func (p Palette) Base(category metar.FlightCategory) led.Color {
	switch category {
	case metar.CategoryVFR:
		return p.VFR
	case metar.CategoryMVFR:
		return p.MVFR
	case metar.CategoryIFR:
		return p.IFR
	case metar.CategoryLIFR:
		return p.LIFR
	default:
		return p.Clear
	}
}
