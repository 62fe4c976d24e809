package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/ksuid"

	"github.com/cocosjn/warcvec/internal/broker"
	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
	"github.com/cocosjn/warcvec/internal/telemetry"
)

// bulker and acker are the two external surfaces of a flush; narrowed for
// tests.
type bulker interface {
	BulkInsert(ctx context.Context, docs []domain.EmbeddingRecord) (int, error)
}

type acker interface {
	Ack(tag uint64, multiple bool) error
}

// shutdownGrace bounds how long a stopping indexer waits for in-flight bulk
// requests. Whatever has not returned by then is abandoned; those documents
// were already acked.
const shutdownGrace = 5 * time.Second

// Indexer accumulates embedding records up to BatchSize, acks the whole
// batch with one multi-ack, and hands the bulk insert to a background
// goroutine so the consuming loop stays hot. With AckAfterBulk set the order
// flips: bulk first, ack only on success.
type Indexer struct {
	cfg  *config.Config
	log  *logger.Logger
	emit telemetry.Emitter
	bulk bulker

	docs []domain.EmbeddingRecord
	tags []uint64

	inflight sync.WaitGroup

	// mu guards the timing counters shared with async bulk goroutines.
	mu             sync.Mutex
	totalIndexSecs float64
	connSecs       float64
}

func New(cfg *config.Config, log *logger.Logger, emit telemetry.Emitter, bulk bulker) *Indexer {
	return &Indexer{cfg: cfg, log: log, emit: emit, bulk: bulk}
}

// Run consumes until ctx is cancelled, rebuilding the broker connection when
// it drops. On shutdown the residual partial batch is flushed before the
// connection closes.
func (ix *Indexer) Run(ctx context.Context) error {
	retryDelay := time.Duration(ix.cfg.Rabbit.RetryDelaySecs) * time.Second

	for {
		err := ix.session(ctx)
		if ctx.Err() != nil {
			ix.awaitBulks()
			ix.log.Info("Indexer stopped")
			return nil
		}
		ix.log.Error("Session ended: %v. Reconnecting in %s", err, retryDelay)

		// Tags from the dead channel are void; drop the accumulator and let
		// the broker redeliver.
		ix.docs = nil
		ix.tags = nil

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

func (ix *Indexer) session(ctx context.Context) error {
	connStart := time.Now()
	conn, err := broker.Connect(ctx, ix.cfg.Rabbit, ix.log)
	if err != nil {
		return err
	}
	defer conn.Close()

	ix.mu.Lock()
	ix.connSecs = time.Since(connStart).Seconds()
	ix.mu.Unlock()

	if err := conn.DeclareQueue(ix.cfg.Queues.Indexing); err != nil {
		return err
	}
	if err := conn.Qos(ix.cfg.Indexer.BatchSize); err != nil {
		return err
	}

	deliveries, err := conn.Consume(ix.cfg.Queues.Indexing, "indexer-"+ksuid.New().String())
	if err != nil {
		return err
	}
	closed := conn.NotifyClose()

	ix.log.Info("Waiting for embeddings on %s (batch size %d)", ix.cfg.Queues.Indexing, ix.cfg.Indexer.BatchSize)

	for {
		select {
		case <-ctx.Done():
			// Final flush of the partial batch, same path as a full one.
			if err := ix.flush(context.WithoutCancel(ctx), conn); err != nil {
				ix.log.Error("Final flush failed: %v", err)
			}
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery stream closed")
			}
			if err := ix.add(ctx, conn, d); err != nil {
				return err
			}
		}
	}
}

// add accumulates one delivery and flushes when the batch is full.
func (ix *Indexer) add(ctx context.Context, ack acker, d amqp.Delivery) error {
	var rec domain.EmbeddingRecord
	if err := json.Unmarshal(d.Body, &rec); err != nil {
		ix.log.Error("Dropping malformed embedding record: %v", err)
		return ack.Ack(d.DeliveryTag, false)
	}

	if len(rec.Embedding) != ix.cfg.Elastic.Dims {
		ix.log.Error("Dropping %s: embedding has %d dims, want %d", rec.URL, len(rec.Embedding), ix.cfg.Elastic.Dims)
		return ack.Ack(d.DeliveryTag, false)
	}

	ix.docs = append(ix.docs, rec)
	ix.tags = append(ix.tags, d.DeliveryTag)

	if len(ix.docs) >= ix.cfg.Indexer.BatchSize {
		return ix.flush(ctx, ack)
	}
	return nil
}

// flush snapshots and clears the accumulators, then acks and dispatches the
// bulk insert. Default order is ack-then-async-bulk; AckAfterBulk makes the
// bulk synchronous and acks only on success.
func (ix *Indexer) flush(ctx context.Context, ack acker) error {
	if len(ix.docs) == 0 {
		return nil
	}

	docs := ix.docs
	lastTag := ix.tags[len(ix.tags)-1]
	ix.docs = nil
	ix.tags = nil

	batchID := ksuid.New().String()

	if ix.cfg.Indexer.AckAfterBulk {
		secs, err := ix.runBulk(ctx, docs, batchID)
		if err != nil {
			return fmt.Errorf("bulk insert for batch %s: %w", batchID, err)
		}
		if err := ack.Ack(lastTag, true); err != nil {
			return fmt.Errorf("batch ack: %w", err)
		}
		ix.emitBatch(batchID, len(docs), secs)
		return nil
	}

	// Ack first so the prefetch window reopens immediately; the batch is
	// lost if the bulk fails.
	if err := ack.Ack(lastTag, true); err != nil {
		return fmt.Errorf("batch ack: %w", err)
	}

	ix.inflight.Add(1)
	go func() {
		defer ix.inflight.Done()

		bulkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()

		secs, err := ix.runBulk(bulkCtx, docs, batchID)
		if err != nil {
			ix.log.Error("Async bulk for batch %s failed, %d documents lost: %v", batchID, len(docs), err)
			return
		}
		ix.emitBatch(batchID, len(docs), secs)
	}()

	return nil
}

func (ix *Indexer) runBulk(ctx context.Context, docs []domain.EmbeddingRecord, batchID string) (float64, error) {
	start := time.Now()
	indexed, err := ix.bulk.BulkInsert(ctx, docs)
	secs := time.Since(start).Seconds()

	ix.mu.Lock()
	ix.totalIndexSecs += secs
	ix.mu.Unlock()

	if err != nil {
		return secs, err
	}

	ix.log.Info("Indexed batch %s: %d documents in %.2fs", batchID, indexed, secs)
	return secs, nil
}

func (ix *Indexer) emitBatch(batchID string, size int, bulkSecs float64) {
	ix.mu.Lock()
	total := ix.totalIndexSecs
	connSecs := ix.connSecs
	ix.mu.Unlock()

	ix.emit.Emit(domain.TelemetryEvent{
		Step:      domain.StepIndexBatch,
		Machine:   ix.cfg.Machine,
		BatchID:   batchID,
		BatchSize: size,
		Timings: domain.Timings{
			BulkSecs:       bulkSecs,
			IndexTotalSecs: total,
			ConnectionSecs: connSecs,
		},
	})
}

// awaitBulks gives outstanding async bulks a bounded grace period.
func (ix *Indexer) awaitBulks() {
	done := make(chan struct{})
	go func() {
		ix.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		ix.log.Warn("Abandoning in-flight bulk requests after %s", shutdownGrace)
	}
}
