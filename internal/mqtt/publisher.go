package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/salvatore0626/PiZeroMetarMap/internal/config"
	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

const publishTimeout = 5 * time.Second

// Publisher pushes refreshed conditions to an MQTT broker. Each station
// gets its own topic under the configured prefix so dashboards can
// subscribe per airport; messages are retained when configured so late
// subscribers see the last known state.
type Publisher struct {
	client mqtt.Client
	config config.MQTTConfig
	logger *logger.Logger
}

// NewPublisher creates and connects an MQTT publisher
func NewPublisher(cfg config.MQTTConfig, log *logger.Logger) (*Publisher, error) {
	log = log.Named("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	// Reconnect handling stays inside the paho client
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info("MQTT connected",
			logger.String("broker", cfg.Broker),
			logger.Int("port", cfg.Port))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", logger.Error(err))
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout to %s:%d", cfg.Broker, cfg.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &Publisher{
		client: client,
		config: cfg,
		logger: log,
	}, nil
}

// ConditionsUpdated publishes each station's condition and a refresh
// summary. Publish failures are logged and skipped; the broker is an
// outbound mirror, never a dependency of the render loop.
func (p *Publisher) ConditionsUpdated(conditions map[string]metar.Condition, changed bool, duration time.Duration, generation uint64) {
	qos := byte(p.config.QoS)

	for station, cond := range conditions {
		payload, err := json.Marshal(cond)
		if err != nil {
			p.logger.Error("Failed to marshal condition",
				logger.String("station", station),
				logger.Error(err))
			continue
		}
		topic := fmt.Sprintf("%s/%s", p.config.TopicPrefix, station)
		p.publish(topic, payload, qos)
	}

	summary, err := json.Marshal(map[string]any{
		"station_count": len(conditions),
		"changed":       changed,
		"duration_ms":   duration.Milliseconds(),
		"generation":    generation,
		"published_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Error("Failed to marshal refresh summary", logger.Error(err))
		return
	}
	p.publish(p.config.TopicPrefix+"/status", summary, qos)
}

func (p *Publisher) publish(topic string, payload []byte, qos byte) {
	token := p.client.Publish(topic, qos, p.config.Retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("MQTT publish timeout", logger.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("MQTT publish failed",
			logger.String("topic", topic),
			logger.Error(err))
	}
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(250)
	p.logger.Info("MQTT disconnected")
}
