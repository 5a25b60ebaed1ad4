package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/salvatore0626/PiZeroMetarMap/internal/config"
	"github.com/salvatore0626/PiZeroMetarMap/internal/led"
)

// ledtest lights the whole strip red for a couple of seconds and clears
// it again. Run it after wiring to confirm the GPIO pin, pixel order and
// LED count before starting the map daemon.
func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	hold := flag.Duration("hold", 2*time.Second, "How long to hold the test color")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateLED(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid LED configuration: %v\n", err)
		os.Exit(1)
	}

	strip, err := led.NewWS281x(led.WS281xConfig{
		GPIOPin:    cfg.LED.GPIOPin,
		Count:      cfg.LED.Count,
		Brightness: cfg.LED.Brightness,
		PixelOrder: cfg.LED.PixelOrder,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize LED strip: %v\n", err)
		os.Exit(1)
	}
	defer strip.Close()

	fmt.Printf("Lighting %d LEDs red on GPIO%d for %s\n", cfg.LED.Count, cfg.LED.GPIOPin, *hold)

	for i := 0; i < strip.Count(); i++ {
		strip.Set(i, led.Color{R: 255})
	}
	if err := strip.Commit(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render test frame: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(*hold)

	// Close blanks the strip on the way out
	fmt.Println("Clearing strip")
}
