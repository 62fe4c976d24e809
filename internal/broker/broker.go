package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

const (
	heartbeat   = 600 * time.Second
	dialTimeout = 30 * time.Second

	keepaliveIdle     = 30 * time.Second
	keepaliveInterval = 5 * time.Second
	keepaliveCount    = 10
)

// newDialer builds the TCP dialer for broker connections: bounded connect
// time plus aggressive keepalives so half-open connections surface quickly
// even with the long AMQP heartbeat.
func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout: dialTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     keepaliveIdle,
			Interval: keepaliveInterval,
			Count:    keepaliveCount,
		},
	}
}

// Conn bundles an AMQP connection with its single channel. A channel must
// only ever be driven from one goroutine; consumers route all publishes and
// acks through the goroutine that owns the Conn.
type Conn struct {
	cfg  config.RabbitConfig
	log  *logger.Logger
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials the broker, retrying forever with the configured fixed delay.
// It only gives up when ctx is cancelled.
func Connect(ctx context.Context, cfg config.RabbitConfig, log *logger.Logger) (*Conn, error) {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.Host,
		Port:     5672,
		Username: cfg.User,
		Password: cfg.Password,
		Vhost:    "/",
	}

	delay := time.Duration(cfg.RetryDelaySecs) * time.Second
	dialer := newDialer()

	for {
		conn, err := amqp.DialConfig(uri.String(), amqp.Config{
			Heartbeat: heartbeat,
			Dial:      dialer.Dial,
		})
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr == nil {
				log.Info("Connected to RabbitMQ at %s", cfg.Host)
				return &Conn{cfg: cfg, log: log, conn: conn, ch: ch}, nil
			}
			conn.Close()
			err = chErr
		}

		log.Error("RabbitMQ connection failed: %v. Retrying in %s", err, delay)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrBrokerUnreachable, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// DeclareQueue declares a durable queue on the default exchange.
func (c *Conn) DeclareQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declaring queue %s: %w", name, err)
	}
	return nil
}

// Qos caps the number of unacked deliveries in flight on this channel.
func (c *Conn) Qos(prefetch int) error {
	return c.ch.Qos(prefetch, 0, false)
}

// Consume starts a manual-ack consumer on the queue.
func (c *Conn) Consume(queue, tag string) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consuming from %s: %w", queue, err)
	}
	return deliveries, nil
}

// Publish sends a persistent JSON message to the queue via the default
// exchange.
func (c *Conn) Publish(ctx context.Context, queue string, body []byte) error {
	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// PublishJSON marshals v and publishes it persistently.
func (c *Conn) PublishJSON(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message for %s: %w", queue, err)
	}
	return c.Publish(ctx, queue, body)
}

// Ack acknowledges a delivery tag. With multiple set, every tag up to and
// including it is acknowledged in one frame.
func (c *Conn) Ack(tag uint64, multiple bool) error {
	return c.ch.Ack(tag, multiple)
}

// Nack rejects a delivery tag, optionally requeueing it.
func (c *Conn) Nack(tag uint64, requeue bool) error {
	return c.ch.Nack(tag, false, requeue)
}

// NotifyClose reports asynchronous connection-level failures. A nil error on
// the channel means a clean shutdown.
func (c *Conn) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close tears down channel then connection. Safe on an already-broken
// connection; errors are swallowed because Close runs on every recovery path.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
