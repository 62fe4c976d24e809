package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/ksuid"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

// Emitter publishes telemetry events. Telemetry is out of band: emit failures
// are logged and never fail the pipeline step that produced the event.
type Emitter interface {
	Emit(ev domain.TelemetryEvent)
	Close()
}

const publishTimeout = 5 * time.Second

// MQTTEmitter publishes events to the logger topic with QoS 1 over a single
// long-lived client connection.
type MQTTEmitter struct {
	client mqtt.Client
	topic  string
	log    *logger.Logger
}

func NewMQTTEmitter(cfg config.MQTTConfig, rabbit config.RabbitConfig, log *logger.Logger) (*MQTTEmitter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID("warcvec-" + ksuid.New().String()).
		SetUsername(rabbit.User).
		SetPassword(rabbit.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("mqtt connect timed out after %s", publishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &MQTTEmitter{client: client, topic: cfg.Topic, log: log}, nil
}

func (e *MQTTEmitter) Emit(ev domain.TelemetryEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("Telemetry encode failed for step %s: %v", ev.Step, err)
		return
	}

	token := e.client.Publish(e.topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.log.Warn("Telemetry publish timed out for step %s", ev.Step)
		return
	}
	if err := token.Error(); err != nil {
		e.log.Error("Telemetry publish failed for step %s: %v", ev.Step, err)
	}
}

func (e *MQTTEmitter) Close() {
	e.client.Disconnect(250)
}

// NopEmitter drops every event. Used when no MQTT host is configured and in
// tests.
type NopEmitter struct{}

func (NopEmitter) Emit(domain.TelemetryEvent) {}
func (NopEmitter) Close()                     {}
