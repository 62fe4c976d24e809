package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

// RetryPolicy shapes the pause between publish attempts. Pauses double from
// Initial up to Max; with Initial == Max the retry delay is fixed.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Pause returns the delay before retry number attempt (0-based).
func (p RetryPolicy) Pause(attempt int) time.Duration {
	d := p.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

// Publisher owns a dedicated connection used only for publishing to a single
// queue. On any publish error the connection is rebuilt from scratch before
// the next attempt; a channel that has seen an error is never reused.
type Publisher struct {
	cfg    config.RabbitConfig
	log    *logger.Logger
	queue  string
	policy RetryPolicy

	conn *Conn

	// connSecs accumulates time spent (re)connecting, for telemetry.
	connSecs float64
}

// ConnSecs reports the total time this publisher has spent (re)connecting so
// far. Callers snapshot it right before emitting telemetry so reconnects
// during publishing are included.
func (p *Publisher) ConnSecs() float64 { return p.connSecs }

// NewPublisher opens the publishing connection and declares the target queue
// durable.
func NewPublisher(ctx context.Context, cfg config.RabbitConfig, log *logger.Logger, queue string, policy RetryPolicy) (*Publisher, error) {
	p := &Publisher{cfg: cfg, log: log, queue: queue, policy: policy}
	if err := p.reconnect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) reconnect(ctx context.Context) error {
	start := time.Now()
	defer func() { p.connSecs += time.Since(start).Seconds() }()

	p.conn.Close()
	p.conn = nil

	conn, err := Connect(ctx, p.cfg, p.log)
	if err != nil {
		return err
	}
	if err := conn.DeclareQueue(p.queue); err != nil {
		conn.Close()
		return err
	}
	p.conn = conn
	return nil
}

// Publish sends v persistently, rebuilding the connection between failed
// attempts according to the retry policy. After the final attempt it returns
// ErrPublishExhausted so the caller can leave the source delivery unacked.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	var lastErr error

	for attempt := 0; attempt < p.policy.Attempts; attempt++ {
		if attempt > 0 {
			pause := p.policy.Pause(attempt - 1)
			p.log.Warn("Publish to %s failed (attempt %d/%d): %v. Reconnecting in %s",
				p.queue, attempt, p.policy.Attempts, lastErr, pause)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}

			if err := p.reconnect(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		if err := p.conn.PublishJSON(ctx, p.queue, v); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: queue %s: %v", domain.ErrPublishExhausted, p.queue, lastErr)
}

func (p *Publisher) Close() {
	p.conn.Close()
}
