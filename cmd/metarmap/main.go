package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/salvatore0626/PiZeroMetarMap/internal/api"
	"github.com/salvatore0626/PiZeroMetarMap/internal/config"
	"github.com/salvatore0626/PiZeroMetarMap/internal/led"
	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
	"github.com/salvatore0626/PiZeroMetarMap/internal/mqtt"
	"github.com/salvatore0626/PiZeroMetarMap/internal/observability"
	"github.com/salvatore0626/PiZeroMetarMap/internal/render"
	"github.com/salvatore0626/PiZeroMetarMap/internal/websocket"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	dryRun := flag.Bool("dry-run", false, "Render to an in-memory strip instead of the LED hardware")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting METAR map",
		logger.String("version", Version),
		logger.Int("led_count", cfg.LED.Count),
		logger.Int("station_count", len(cfg.StationIDs())),
		logger.Bool("dry_run", *dryRun),
	)

	// LED strip: hardware unless dry-run
	var strip led.Strip
	if *dryRun {
		strip = led.NewMemoryStrip(cfg.LED.Count)
	} else {
		strip, err = led.NewWS281x(led.WS281xConfig{
			GPIOPin:    cfg.LED.GPIOPin,
			Count:      cfg.LED.Count,
			Brightness: cfg.LED.Brightness,
			PixelOrder: cfg.LED.PixelOrder,
		})
		if err != nil {
			log.Error("Failed to initialize LED strip", logger.Error(err))
			os.Exit(1)
		}
	}
	defer strip.Close()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	// METAR fetch pipeline
	client := metar.NewClient(metar.ClientConfig{
		BaseURL:        cfg.Weather.APIBaseURL,
		UserAgent:      cfg.Weather.UserAgent,
		RequestTimeout: time.Duration(cfg.Weather.RequestTimeoutSeconds) * time.Second,
		MaxRetries:     cfg.Weather.MaxRetries,
		MaxBatchSize:   cfg.Weather.MaxBatchSize,
	}, log)

	store := metar.NewStore()
	service := metar.NewService(metar.ServiceConfig{
		StationIDs:      cfg.StationIDs(),
		RefreshInterval: time.Duration(cfg.Weather.RefreshIntervalSeconds) * time.Second,
		ErrorRetry:      time.Duration(cfg.Weather.ErrorRetrySeconds) * time.Second,
		Lookback:        time.Duration(cfg.Weather.LookbackHours) * time.Hour,
		WindThresholdKt: cfg.Animation.WindThresholdKt,
	}, client, store, clock, metrics, log)

	// WebSocket hub for live condition pushes
	wsServer := websocket.NewServer(log)
	go wsServer.Run()
	service.AddObserver(websocket.NewConditionObserver(wsServer))

	// Optional MQTT mirror
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = mqtt.NewPublisher(cfg.MQTT, log)
		if err != nil {
			log.Error("Failed to connect MQTT publisher", logger.Error(err))
			os.Exit(1)
		}
		service.AddObserver(publisher)
	}

	// Renderer drives the strip and triggers fetches
	animator := render.NewAnimator(render.AnimationConfig{
		WindEnabled:           cfg.Animation.WindEnabled,
		LightningEnabled:      cfg.Animation.LightningEnabled,
		Fade:                  cfg.Animation.FadeInsteadOfBlink,
		BlinkPeriod:           time.Duration(cfg.Animation.BlinkPeriodMs) * time.Millisecond,
		WindThresholdKt:       cfg.Animation.WindThresholdKt,
		AlwaysAnimateForGusts: cfg.Animation.AlwaysAnimateForGusts,
		HighWindSolidKt:       cfg.Animation.HighWindSolidKt,
		LightningPeriod:       time.Duration(cfg.Animation.LightningPeriodMs) * time.Millisecond,
		FlashFraction:         cfg.Animation.FlashFraction,
		DecayFraction:         cfg.Animation.DecayFraction,
		PhaseSpread:           cfg.Animation.PhaseSpread,
	}, paletteFromConfig(cfg.Colors))

	renderer := render.NewRenderer(render.RendererConfig{
		Mapping:               cfg.Stations.Mapping,
		FrameRate:             cfg.Animation.FrameRateHz,
		RefreshTransition:     cfg.Animation.RefreshTransition,
		RiverStep:             time.Duration(cfg.Animation.RiverStepMs) * time.Millisecond,
		FadeDuration:          time.Duration(cfg.Animation.FadeDurationMs) * time.Millisecond,
		SuppressDuringRefresh: cfg.Animation.SuppressDuringRefresh,
		HeartbeatIndex:        cfg.LED.HeartbeatIndex,
		StaleAfter:            time.Duration(cfg.Weather.StaleAfterSeconds) * time.Second,
	}, strip, animator, service, clock, metrics, log)
	renderer.Start()

	// HTTP status API
	var server *http.Server
	if cfg.Server.Enabled {
		handler := api.NewHandler(service, cfg, log)
		router := api.NewRouter(handler, wsServer)

		server = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router.Routes(),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}

		go func() {
			log.Info("Starting HTTP server", logger.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")

	// Renderer first so no frames race the strip teardown
	renderer.Stop()
	service.Stop()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", logger.Error(err))
		}
		shutdownCancel()
	}

	wsServer.Stop()

	if publisher != nil {
		publisher.Close()
	}

	log.Info("METAR map stopped")
}

// paletteFromConfig converts the validated [R, G, B] triples into a render palette
func paletteFromConfig(colors config.ColorsConfig) render.Palette {
	rgb := func(c []int) led.Color {
		return led.Color{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2])}
	}
	return render.Palette{
		VFR:       rgb(colors.VFR),
		MVFR:      rgb(colors.MVFR),
		IFR:       rgb(colors.IFR),
		LIFR:      rgb(colors.LIFR),
		Clear:     rgb(colors.Clear),
		Lightning: rgb(colors.Lightning),
		HighWind:  rgb(colors.HighWind),
		NoData:    rgb(colors.NoData),
	}
}
