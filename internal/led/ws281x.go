package led

import (
	"fmt"

	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"
)

// WS281xConfig contains the strip hardware parameters
type WS281xConfig struct {
	GPIOPin    int
	Count      int
	Brightness int    // 0-255 global brightness scalar
	PixelOrder string // "RGB", "GRB", ...
}

// WS281x drives an addressable WS281x strip through the rpi-ws281x
// driver. Set buffers pixels; Commit renders the frame.
type WS281x struct {
	dev   *ws2811.WS2811
	count int
}

// stripType maps a channel-order name onto the driver constant
func stripType(order string) (int, error) {
	switch order {
	case "RGB":
		return ws2811.WS2811StripRGB, nil
	case "RBG":
		return ws2811.WS2811StripRBG, nil
	case "GRB":
		return ws2811.WS2811StripGRB, nil
	case "GBR":
		return ws2811.WS2811StripGBR, nil
	case "BRG":
		return ws2811.WS2811StripBRG, nil
	case "BGR":
		return ws2811.WS2811StripBGR, nil
	default:
		return 0, fmt.Errorf("unsupported pixel order: %q", order)
	}
}

// NewWS281x initializes the LED hardware
func NewWS281x(config WS281xConfig) (*WS281x, error) {
	order, err := stripType(config.PixelOrder)
	if err != nil {
		return nil, err
	}

	opt := ws2811.DefaultOptions
	opt.Channels[0].GpioPin = config.GPIOPin
	opt.Channels[0].Brightness = config.Brightness
	opt.Channels[0].LedCount = config.Count
	opt.Channels[0].StripeType = order

	dev, err := ws2811.MakeWS2811(&opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create ws281x device: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize ws281x device: %w", err)
	}

	return &WS281x{dev: dev, count: config.Count}, nil
}

func (w *WS281x) Count() int {
	return w.count
}

func (w *WS281x) Set(index int, color Color) {
	if index < 0 || index >= w.count {
		return
	}
	// Logical RGB packed as 0x00RRGGBB; the driver applies the channel
	// permutation configured via the strip type.
	w.dev.Leds(0)[index] = uint32(color.R)<<16 | uint32(color.G)<<8 | uint32(color.B)
}

func (w *WS281x) Commit() error {
	if err := w.dev.Render(); err != nil {
		return fmt.Errorf("ws281x render failed: %w", err)
	}
	if err := w.dev.Wait(); err != nil {
		return fmt.Errorf("ws281x wait failed: %w", err)
	}
	return nil
}

// Close blanks every pixel and releases the hardware
func (w *WS281x) Close() error {
	leds := w.dev.Leds(0)
	for i := range leds {
		leds[i] = 0
	}
	if err := w.dev.Render(); err != nil {
		w.dev.Fini()
		return err
	}
	w.dev.Fini()
	return nil
}
