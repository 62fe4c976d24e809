package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/ksuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

// routes maps the step discriminator to its destination collection. The
// indexer historically published both "index" and "index_batch_async"; both
// land in index_logs.
var routes = map[string]string{
	domain.StepWarc:       WarcLogs,
	domain.StepVector:     VectorLogs,
	"index":               IndexLogs,
	domain.StepIndexBatch: IndexLogs,
}

// Route resolves a step discriminator to its collection.
func Route(step string) (string, bool) {
	coll, ok := routes[step]
	return coll, ok
}

// DecodeEvent parses a raw telemetry payload, pops the step discriminator,
// and synthesizes the Created_at receipt timestamp. The returned document is
// what gets persisted verbatim.
func DecodeEvent(payload []byte, receivedAt time.Time) (string, bson.M, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidTelemetry, err)
	}

	step, _ := raw["step"].(string)
	coll, ok := Route(step)
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown step %q", domain.ErrInvalidTelemetry, step)
	}
	delete(raw, "step")

	doc := bson.M{"Created_at": receivedAt.UTC()}
	for k, v := range raw {
		doc[k] = v
	}
	return coll, doc, nil
}

// Collector subscribes to the telemetry topic and persists each event into
// the step's time-series collection. Malformed payloads are logged and
// dropped.
type Collector struct {
	cfg    config.MQTTConfig
	rabbit config.RabbitConfig
	store  *Store
	log    *logger.Logger
}

func NewCollector(cfg config.MQTTConfig, rabbit config.RabbitConfig, store *Store, log *logger.Logger) *Collector {
	return &Collector{cfg: cfg, rabbit: rabbit, store: store, log: log}
}

// Run blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.store.EnsureCollections(ctx); err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", c.cfg.Host, c.cfg.Port)).
		SetClientID("warcvec-collector-" + ksuid.New().String()).
		SetUsername(c.rabbit.User).
		SetPassword(c.rabbit.Password).
		SetAutoReconnect(true).
		SetCleanSession(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		c.handle(ctx, msg.Payload())
	}

	if token := client.Subscribe(c.cfg.Topic, 1, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", c.cfg.Topic, token.Error())
	}
	c.log.Info("Telemetry collector subscribed to %s", c.cfg.Topic)

	<-ctx.Done()
	c.log.Info("Telemetry collector shutting down")
	if token := client.Unsubscribe(c.cfg.Topic); token.Wait() && token.Error() != nil {
		c.log.Warn("Unsubscribe failed: %v", token.Error())
	}
	return nil
}

func (c *Collector) handle(ctx context.Context, payload []byte) {
	coll, doc, err := DecodeEvent(payload, time.Now())
	if err != nil {
		c.log.Warn("Dropping telemetry event: %v", err)
		return
	}

	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := c.store.Insert(insertCtx, coll, doc); err != nil {
		c.log.Error("Insert into %s failed: %v", coll, err)
	}
}
