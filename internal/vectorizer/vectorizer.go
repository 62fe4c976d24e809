package vectorizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/cocosjn/warcvec/internal/broker"
	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/encoder"
	"github.com/cocosjn/warcvec/internal/logger"
	"github.com/cocosjn/warcvec/internal/segment"
	"github.com/cocosjn/warcvec/internal/telemetry"
)

// Batch collection pacing: the first message is awaited in pollInterval
// slices; once a batch has begun, fillWindow bounds how long we wait for it
// to fill up to DocBatchSize.
const (
	pollInterval = 50 * time.Millisecond
	fillWindow   = 100 * time.Millisecond
)

// task is one delivery handed from the broker I/O goroutine to the batch
// owner through the internal queue.
type task struct {
	tag  uint64
	body []byte
}

// embPublisher and acker are the broker write surfaces the batch owner uses;
// narrowed for tests.
type embPublisher interface {
	Publish(ctx context.Context, v any) error
	ConnSecs() float64
}

type acker interface {
	Ack(tag uint64, multiple bool) error
}

// Vectorizer consumes page records in batches, encodes their overlapping
// sentence segments through the embedding sidecar, reduces to one unit
// vector per document and forwards the result to the indexing queue.
//
// The broker I/O goroutine stays compute-free: deliveries are only ever
// enqueued onto a bounded internal channel, and a full channel stops the
// prefetch window from advancing. A single batch-owner goroutine does every
// publish and ack.
type Vectorizer struct {
	cfg  *config.Config
	log  *logger.Logger
	emit telemetry.Emitter
	enc  encoder.Encoder
	seg  *segment.Segmenter

	// pending collects delivery tags whose documents could not be published
	// after exhausted retries. They stay unacked; the broker redelivers them
	// once the channel closes.
	pending []uint64
}

func New(cfg *config.Config, log *logger.Logger, emit telemetry.Emitter, enc encoder.Encoder, seg *segment.Segmenter) *Vectorizer {
	return &Vectorizer{cfg: cfg, log: log, emit: emit, enc: enc, seg: seg}
}

// Run drives the per-connection state machine: Connecting, Consuming,
// Publishing, and on any broker error Recovering (tear down, pause,
// reconnect, redeclare, resubscribe). Unacked deliveries in flight at
// recovery time are redelivered; duplicates are accepted.
func (v *Vectorizer) Run(ctx context.Context) error {
	retryDelay := time.Duration(v.cfg.Rabbit.RetryDelaySecs) * time.Second

	for {
		err := v.session(ctx)
		if ctx.Err() != nil {
			v.log.Info("Vectorizer stopped")
			return nil
		}
		v.log.Error("Session ended: %v. Recovering in %s", err, retryDelay)

		if n := len(v.pending); n > 0 {
			v.log.Warn("%d unpublished documents will be redelivered", n)
			v.pending = v.pending[:0]
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

func (v *Vectorizer) session(ctx context.Context) error {
	conn, err := broker.Connect(ctx, v.cfg.Rabbit, v.log)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, q := range []string{v.cfg.Queues.Vectorization, v.cfg.Queues.Indexing} {
		if err := conn.DeclareQueue(q); err != nil {
			return err
		}
	}
	if err := conn.Qos(v.cfg.Vectorizer.DocBatchSize); err != nil {
		return err
	}

	deliveries, err := conn.Consume(v.cfg.Queues.Vectorization, "vectorizer-"+ksuid.New().String())
	if err != nil {
		return err
	}

	pub, err := broker.NewPublisher(ctx, v.cfg.Rabbit, v.log, v.cfg.Queues.Indexing, broker.RetryPolicy{
		Attempts: 5,
		Initial:  500 * time.Millisecond,
		Max:      2 * time.Second,
	})
	if err != nil {
		return err
	}
	defer pub.Close()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Broker I/O goroutine: enqueue only, never publish or ack from here.
	internal := make(chan task, v.cfg.Vectorizer.DocBatchSize)
	go func() {
		defer close(internal)
		for d := range deliveries {
			select {
			case <-sctx.Done():
				return
			case internal <- task{tag: d.DeliveryTag, body: d.Body}:
			}
		}
	}()

	v.log.Info("Waiting for pages on %s (batch size %d)", v.cfg.Queues.Vectorization, v.cfg.Vectorizer.DocBatchSize)

	for {
		batch, ok := v.collect(sctx, internal)
		if !ok {
			if sctx.Err() != nil {
				return sctx.Err()
			}
			return errors.New("delivery stream closed")
		}
		if len(batch) == 0 {
			continue
		}

		if err := v.process(sctx, conn, pub, batch); err != nil {
			return err
		}
	}
}

// collect assembles the next batch: block up to pollInterval for the first
// task (an empty poll just retries), then drain until DocBatchSize or the
// fill window elapses, whichever comes first. The second return value is
// false once the internal queue is gone.
func (v *Vectorizer) collect(ctx context.Context, internal <-chan task) ([]task, bool) {
	var batch []task

	select {
	case <-ctx.Done():
		return nil, false
	case t, ok := <-internal:
		if !ok {
			return nil, false
		}
		batch = append(batch, t)
	case <-time.After(pollInterval):
		return nil, true
	}

	window := time.NewTimer(fillWindow)
	defer window.Stop()

	for len(batch) < v.cfg.Vectorizer.DocBatchSize {
		select {
		case <-ctx.Done():
			return batch, true
		case t, ok := <-internal:
			if !ok {
				return batch, true
			}
			batch = append(batch, t)
		case <-window.C:
			return batch, true
		}
	}

	return batch, true
}

// process runs one batch through parse+segment, encode, reduce, and
// publish+ack. Broker errors bubble up to trigger recovery; encode failures
// leave the whole batch unacked and move on.
func (v *Vectorizer) process(ctx context.Context, ack acker, pub embPublisher, batch []task) error {
	var timings domain.Timings

	// Parse + segment.
	start := time.Now()
	type docItem struct {
		tag  uint64
		page domain.PageRecord
	}

	var docs []docItem
	var counts []int
	var flat []string

	for _, t := range batch {
		var page domain.PageRecord
		if err := json.Unmarshal(t.body, &page); err != nil {
			// Poison message: requeueing would loop forever.
			v.log.Error("Dropping malformed page record: %v", err)
			if ackErr := ack.Ack(t.tag, false); ackErr != nil {
				return fmt.Errorf("acking malformed record: %w", ackErr)
			}
			continue
		}

		segs := v.seg.Segment(page.Text, segment.DefaultMaxWords, segment.DefaultOverlap)
		if len(segs) == 0 {
			v.log.Warn("No segments for %s, dropping", page.URL)
			if ackErr := ack.Ack(t.tag, false); ackErr != nil {
				return fmt.Errorf("acking empty record: %w", ackErr)
			}
			continue
		}

		docs = append(docs, docItem{tag: t.tag, page: page})
		counts = append(counts, len(segs))
		flat = append(flat, segs...)
	}
	timings.SegmentSecs = time.Since(start).Seconds()

	if len(docs) == 0 {
		return nil
	}

	// Encode in mini-batches.
	start = time.Now()
	embeddings, err := v.encodeAll(ctx, flat)
	if err != nil {
		// VectorizeFailed: leave the batch unacked, pause, move on. The
		// broker redelivers after the channel eventually closes.
		v.log.Error("Encoding batch of %d segments failed: %v", len(flat), err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		return nil
	}
	timings.EncodeSecs = time.Since(start).Seconds()

	// Reduce.
	start = time.Now()
	vectors := MeanNormalize(embeddings, counts, v.enc.Dims())
	timings.ReduceSecs = time.Since(start).Seconds()

	// Publish + ack, in input order.
	for i, doc := range docs {
		record := domain.EmbeddingRecord{
			URL:       doc.page.URL,
			H1:        doc.page.H1,
			Embedding: vectors[i],
		}

		if err := pub.Publish(ctx, record); err != nil {
			if errors.Is(err, domain.ErrPublishExhausted) {
				v.log.Error("Giving up on %s, leaving unacked: %v", doc.page.URL, err)
				v.pending = append(v.pending, doc.tag)
				continue
			}
			return err
		}

		if err := ack.Ack(doc.tag, false); err != nil {
			return fmt.Errorf("acking %s: %w", doc.page.URL, err)
		}

		// Snapshot after the publish so reconnects during this batch count.
		timings.ConnectionSecs = pub.ConnSecs()

		v.emit.Emit(domain.TelemetryEvent{
			Step:     domain.StepVector,
			Machine:  v.cfg.Machine,
			URL:      doc.page.URL,
			Segments: counts[i],
			Timings:  timings,
		})
	}

	v.log.Info("Vectorized batch: %d documents, %d segments (encode %.2fs)",
		len(docs), len(flat), timings.EncodeSecs)
	return nil
}

// encodeAll feeds the flattened segment list to the model in EMBED_BATCH_SIZE
// mini-batches and reassembles the full matrix.
func (v *Vectorizer) encodeAll(ctx context.Context, segs []string) ([][]float32, error) {
	size := v.cfg.Encoder.BatchSize
	out := make([][]float32, 0, len(segs))

	for start := 0; start < len(segs); start += size {
		end := start + size
		if end > len(segs) {
			end = len(segs)
		}

		emb, err := v.enc.Encode(ctx, segs[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, emb...)
	}

	return out, nil
}
