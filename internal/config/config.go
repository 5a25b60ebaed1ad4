package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	LED       LEDConfig       `toml:"led"`       // LED strip hardware settings
	Stations  StationsConfig  `toml:"stations"`  // LED-to-airport mapping
	Weather   WeatherConfig   `toml:"wx"`        // METAR fetching settings
	Animation AnimationConfig `toml:"animation"` // Hazard animation and transition settings
	Colors    ColorsConfig    `toml:"colors"`    // Flight category and hazard palette
	Server    ServerConfig    `toml:"server"`    // HTTP status API settings
	MQTT      MQTTConfig      `toml:"mqtt"`      // Optional MQTT condition publishing
	Logging   LoggingConfig   `toml:"logging"`   // Application logging settings
}

// LEDConfig contains LED strip hardware configuration
type LEDConfig struct {
	Count          int    `toml:"count"`           // Number of physical LEDs on the strip
	GPIOPin        int    `toml:"gpio_pin"`        // GPIO pin driving the strip (e.g., 18 for PWM)
	Brightness     int    `toml:"brightness"`      // Global brightness scalar, 0-255
	PixelOrder     string `toml:"pixel_order"`     // Channel ordering of the strip: "RGB", "GRB", "BRG", "RBG", "GBR", or "BGR"
	HeartbeatIndex int    `toml:"heartbeat_index"` // LED index used as a stale-data heartbeat (-1 disables)
}

// StationsConfig contains the ordered LED-to-station mapping
type StationsConfig struct {
	// Mapping is indexed by LED position; entries are ICAO identifiers,
	// an empty string marks an LED with no station assigned.
	// The list may be longer or shorter than the physical LED count;
	// only the overlapping prefix is rendered.
	Mapping []string `toml:"mapping"`
}

// WeatherConfig contains METAR fetching configuration
type WeatherConfig struct {
	APIBaseURL             string `toml:"api_base_url"`             // Base URL of the aviation weather API
	UserAgent              string `toml:"user_agent"`               // User-Agent header sent with every request
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"` // Normal interval between fetches
	ErrorRetrySeconds      int    `toml:"error_retry_seconds"`      // Shortened interval after a failed fetch
	LookbackHours          int    `toml:"lookback_hours"`           // Observation lookback window passed to the API
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`  // Network timeout per HTTP request
	MaxRetries             int    `toml:"max_retries"`              // Retry attempts per request beyond the first
	MaxBatchSize           int    `toml:"max_batch_size"`           // Maximum station ids per API request
	StaleAfterSeconds      int    `toml:"stale_after_seconds"`      // Age after which data is considered stale (heartbeat)
}

// AnimationConfig contains hazard animation and refresh transition settings
type AnimationConfig struct {
	WindEnabled           bool    `toml:"wind_enabled"`                    // Animate stations at or above the wind threshold
	LightningEnabled      bool    `toml:"lightning_enabled"`               // Animate stations reporting lightning
	FadeInsteadOfBlink    bool    `toml:"fade_instead_of_blink"`           // true = blend between colors, false = hard on/off
	BlinkPeriodMs         int     `toml:"blink_period_ms"`                 // Full wind animation cycle duration
	WindThresholdKt       int     `toml:"wind_threshold_kt"`               // Sustained or gust speed that triggers wind animation
	AlwaysAnimateForGusts bool    `toml:"always_animate_for_gusts"`        // Any nonzero gust animates regardless of sustained speed
	HighWindSolidKt       int     `toml:"high_wind_solid_kt"`              // Speed at which the LED goes solid high-wind (-1 disables)
	LightningPeriodMs     int     `toml:"lightning_period_ms"`             // Full lightning cycle duration
	FlashFraction         float64 `toml:"flash_fraction"`                  // Fraction of the lightning cycle at full intensity
	DecayFraction         float64 `toml:"decay_fraction"`                  // Fraction of the cycle spent decaying back to base
	PhaseSpread           float64 `toml:"phase_spread"`                    // Per-station phase offset as a fraction of the period
	FrameRateHz           int     `toml:"frame_rate_hz"`                   // Render loop frame rate
	RefreshTransition     string  `toml:"refresh_transition"`              // Visual on refresh: "river", "fade", or "none"
	RiverStepMs           int     `toml:"river_step_ms"`                   // Per-LED delay during the river reveal
	FadeDurationMs        int     `toml:"fade_duration_ms"`                // Duration of each half of the strip fade
	SuppressDuringRefresh bool    `toml:"suppress_effects_during_refresh"` // Render pure base colors during the transition
}

// ColorsConfig contains the color palette as [R, G, B] triples
type ColorsConfig struct {
	VFR       []int `toml:"vfr"`
	MVFR      []int `toml:"mvfr"`
	IFR       []int `toml:"ifr"`
	LIFR      []int `toml:"lifr"`
	Clear     []int `toml:"clear"`     // Unknown/uncategorized stations
	Lightning []int `toml:"lightning"` // Flash color for lightning reports
	HighWind  []int `toml:"high_wind"` // Wind animation / solid high-wind color
	NoData    []int `toml:"no_data"`   // Stations with no recent report
}

// ServerConfig contains HTTP status API configuration
type ServerConfig struct {
	Enabled          bool   `toml:"enabled"`               // Serve the read-only status API
	Host             string `toml:"host"`                  // Host address to bind to
	Port             int    `toml:"port"`                  // HTTP port
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Keep-alive idle timeout
}

// MQTTConfig contains optional MQTT publishing configuration
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`      // Publish per-station conditions on each refresh
	Broker      string `toml:"broker"`       // Broker hostname or IP
	Port        int    `toml:"port"`         // Broker port
	ClientID    string `toml:"client_id"`    // MQTT client identifier
	TopicPrefix string `toml:"topic_prefix"` // Topic prefix; station messages go to <prefix>/<station>
	QoS         int    `toml:"qos"`          // MQTT quality of service (0, 1, or 2)
	Retain      bool   `toml:"retain"`       // Publish retained messages
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// DefaultConfig returns a configuration with the defaults used by the
// original map hardware (20 LED strip on GPIO18, aviationweather.gov).
func DefaultConfig() *Config {
	return &Config{
		LED: LEDConfig{
			Count:          20,
			GPIOPin:        18,
			Brightness:     153,
			PixelOrder:     "GRB",
			HeartbeatIndex: -1,
		},
		Weather: WeatherConfig{
			APIBaseURL:             "https://aviationweather.gov",
			UserAgent:              "METARMap/2.0 (+contact@example.com)",
			RefreshIntervalSeconds: 600,
			ErrorRetrySeconds:      60,
			LookbackHours:          5,
			RequestTimeoutSeconds:  10,
			MaxRetries:             2,
			MaxBatchSize:           150,
			StaleAfterSeconds:      1800,
		},
		Animation: AnimationConfig{
			WindEnabled:           true,
			LightningEnabled:      true,
			FadeInsteadOfBlink:    true,
			BlinkPeriodMs:         2000,
			WindThresholdKt:       25,
			AlwaysAnimateForGusts: false,
			HighWindSolidKt:       35,
			LightningPeriodMs:     2500,
			FlashFraction:         0.15,
			DecayFraction:         0.35,
			PhaseSpread:           0.2,
			FrameRateHz:           10,
			RefreshTransition:     "river",
			RiverStepMs:           60,
			FadeDurationMs:        800,
			SuppressDuringRefresh: true,
		},
		Colors: ColorsConfig{
			VFR:       []int{0, 255, 0},
			MVFR:      []int{0, 0, 255},
			IFR:       []int{255, 0, 0},
			LIFR:      []int{255, 0, 255},
			Clear:     []int{0, 0, 0},
			Lightning: []int{255, 255, 255},
			HighWind:  []int{255, 255, 0},
			NoData:    []int{5, 5, 5},
		},
		Server: ServerConfig{
			Enabled:          true,
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeoutSecs:  15,
			WriteTimeoutSecs: 15,
			IdleTimeoutSecs:  60,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Port:        1883,
			ClientID:    "metarmap",
			TopicPrefix: "metarmap",
			QoS:         0,
			Retain:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads the configuration from the specified file path.
// Values absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.normalize()
	return config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// normalize upper-cases station identifiers and trims whitespace so the
// mapping compares cleanly against API station ids.
func (c *Config) normalize() {
	for i, id := range c.Stations.Mapping {
		c.Stations.Mapping[i] = strings.ToUpper(strings.TrimSpace(id))
	}
	c.LED.PixelOrder = strings.ToUpper(strings.TrimSpace(c.LED.PixelOrder))
	c.Animation.RefreshTransition = strings.ToLower(strings.TrimSpace(c.Animation.RefreshTransition))
}

// StationIDs returns the distinct non-empty station identifiers from the mapping
func (c *Config) StationIDs() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(c.Stations.Mapping))
	for _, id := range c.Stations.Mapping {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.ValidateLED(); err != nil {
		return err
	}
	if err := c.ValidateWeather(); err != nil {
		return err
	}
	if err := c.ValidateAnimation(); err != nil {
		return err
	}
	if err := c.ValidateColors(); err != nil {
		return err
	}

	if len(c.Stations.Mapping) == 0 {
		return fmt.Errorf("stations.mapping must contain at least one entry")
	}
	if len(c.StationIDs()) == 0 {
		return fmt.Errorf("stations.mapping contains no station identifiers")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d", c.Server.Port)
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("invalid mqtt port: %d", c.MQTT.Port)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required when mqtt is enabled")
		}
	}

	return nil
}

// ValidateLED validates the LED hardware configuration
func (c *Config) ValidateLED() error {
	if c.LED.Count <= 0 {
		return fmt.Errorf("led.count must be greater than 0: %d", c.LED.Count)
	}
	if c.LED.Brightness < 0 || c.LED.Brightness > 255 {
		return fmt.Errorf("led.brightness must be 0-255: %d", c.LED.Brightness)
	}
	switch c.LED.PixelOrder {
	case "RGB", "RBG", "GRB", "GBR", "BRG", "BGR":
	default:
		return fmt.Errorf("invalid led.pixel_order: %q", c.LED.PixelOrder)
	}
	if c.LED.HeartbeatIndex >= c.LED.Count {
		return fmt.Errorf("led.heartbeat_index %d out of range for %d LEDs", c.LED.HeartbeatIndex, c.LED.Count)
	}
	return nil
}

// ValidateWeather validates the METAR fetching configuration
func (c *Config) ValidateWeather() error {
	if c.Weather.APIBaseURL == "" {
		return fmt.Errorf("wx.api_base_url cannot be empty")
	}
	if c.Weather.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("wx.refresh_interval_seconds must be greater than 0")
	}
	if c.Weather.ErrorRetrySeconds <= 0 {
		return fmt.Errorf("wx.error_retry_seconds must be greater than 0")
	}
	if c.Weather.ErrorRetrySeconds > c.Weather.RefreshIntervalSeconds {
		return fmt.Errorf("wx.error_retry_seconds (%d) must not exceed wx.refresh_interval_seconds (%d)",
			c.Weather.ErrorRetrySeconds, c.Weather.RefreshIntervalSeconds)
	}
	if c.Weather.LookbackHours <= 0 {
		return fmt.Errorf("wx.lookback_hours must be greater than 0")
	}
	if c.Weather.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("wx.request_timeout_seconds must be greater than 0")
	}
	if c.Weather.MaxRetries < 0 {
		return fmt.Errorf("wx.max_retries must be 0 or greater")
	}
	if c.Weather.MaxBatchSize <= 0 {
		return fmt.Errorf("wx.max_batch_size must be greater than 0")
	}
	return nil
}

// ValidateAnimation validates the animation configuration
func (c *Config) ValidateAnimation() error {
	if c.Animation.BlinkPeriodMs <= 0 {
		return fmt.Errorf("animation.blink_period_ms must be greater than 0")
	}
	if c.Animation.LightningPeriodMs <= 0 {
		return fmt.Errorf("animation.lightning_period_ms must be greater than 0")
	}
	if c.Animation.FlashFraction <= 0 || c.Animation.FlashFraction >= 1 {
		return fmt.Errorf("animation.flash_fraction must be in (0, 1): %f", c.Animation.FlashFraction)
	}
	if c.Animation.DecayFraction < 0 || c.Animation.FlashFraction+c.Animation.DecayFraction > 1 {
		return fmt.Errorf("animation.flash_fraction + animation.decay_fraction must not exceed 1")
	}
	if c.Animation.PhaseSpread < 0 || c.Animation.PhaseSpread > 1 {
		return fmt.Errorf("animation.phase_spread must be in [0, 1]: %f", c.Animation.PhaseSpread)
	}
	if c.Animation.FrameRateHz <= 0 || c.Animation.FrameRateHz > 60 {
		return fmt.Errorf("animation.frame_rate_hz must be in 1-60: %d", c.Animation.FrameRateHz)
	}
	switch c.Animation.RefreshTransition {
	case "river", "fade", "none":
	default:
		return fmt.Errorf("invalid animation.refresh_transition: %q", c.Animation.RefreshTransition)
	}
	if c.Animation.RefreshTransition == "river" && c.Animation.RiverStepMs <= 0 {
		return fmt.Errorf("animation.river_step_ms must be greater than 0")
	}
	if c.Animation.RefreshTransition == "fade" && c.Animation.FadeDurationMs <= 0 {
		return fmt.Errorf("animation.fade_duration_ms must be greater than 0")
	}
	return nil
}

// ValidateColors validates that every palette entry is an [R, G, B] triple
func (c *Config) ValidateColors() error {
	entries := map[string][]int{
		"vfr":       c.Colors.VFR,
		"mvfr":      c.Colors.MVFR,
		"ifr":       c.Colors.IFR,
		"lifr":      c.Colors.LIFR,
		"clear":     c.Colors.Clear,
		"lightning": c.Colors.Lightning,
		"high_wind": c.Colors.HighWind,
		"no_data":   c.Colors.NoData,
	}
	for name, rgb := range entries {
		if len(rgb) != 3 {
			return fmt.Errorf("colors.%s must have exactly 3 components, got %d", name, len(rgb))
		}
		for _, v := range rgb {
			if v < 0 || v > 255 {
				return fmt.Errorf("colors.%s component out of range 0-255: %d", name, v)
			}
		}
	}
	return nil
}
