package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/ksuid"

	"github.com/cocosjn/warcvec/internal/broker"
	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
	"github.com/cocosjn/warcvec/internal/telemetry"
	"github.com/cocosjn/warcvec/internal/warc"
)

// pagePublisher is the slice of broker.Publisher the job handler needs;
// narrowed for tests.
type pagePublisher interface {
	Publish(ctx context.Context, v any) error
	ConnSecs() float64
	Close()
}

// Downloader consumes WARC jobs one at a time (prefetch 1), fetches the
// archive file, extracts French pages and forwards them to the vectorization
// queue over a dedicated publishing connection.
type Downloader struct {
	cfg  *config.Config
	log  *logger.Logger
	emit telemetry.Emitter

	// newPublisher is swapped out in tests.
	newPublisher func(ctx context.Context) (pagePublisher, error)
}

func New(cfg *config.Config, log *logger.Logger, emit telemetry.Emitter) *Downloader {
	d := &Downloader{cfg: cfg, log: log, emit: emit}
	d.newPublisher = func(ctx context.Context) (pagePublisher, error) {
		return broker.NewPublisher(ctx, cfg.Rabbit, log, cfg.Queues.Vectorization, broker.RetryPolicy{
			Attempts: 3,
			Initial:  2 * time.Second,
			Max:      2 * time.Second,
		})
	}
	return d
}

// Run consumes jobs until ctx is cancelled, rebuilding the broker connection
// whenever it drops.
func (d *Downloader) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.Downloader.WarcDir, 0o755); err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}

	retryDelay := time.Duration(d.cfg.Rabbit.RetryDelaySecs) * time.Second

	for {
		err := d.consume(ctx)
		if ctx.Err() != nil {
			d.log.Info("Downloader stopped")
			return nil
		}
		d.log.Error("Consumer loop ended: %v. Reconnecting in %s", err, retryDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

func (d *Downloader) consume(ctx context.Context) error {
	conn, err := broker.Connect(ctx, d.cfg.Rabbit, d.log)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeclareQueue(d.cfg.Queues.Download); err != nil {
		return err
	}
	// One WARC at a time: a single job is minutes of work.
	if err := conn.Qos(1); err != nil {
		return err
	}

	deliveries, err := conn.Consume(d.cfg.Queues.Download, "downloader-"+ksuid.New().String())
	if err != nil {
		return err
	}
	closed := conn.NotifyClose()

	d.log.Info("Waiting for WARC jobs on %s", d.cfg.Queues.Download)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			d.handle(ctx, conn, delivery)
		}
	}
}

// handle processes one WARC job end to end. All failure paths nack-requeue
// the job so another worker can pick it up; only a malformed payload is
// dropped outright, since requeueing it would loop forever.
func (d *Downloader) handle(ctx context.Context, conn *broker.Conn, delivery amqp.Delivery) {
	var job domain.WarcJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil || job.WarcURL == "" {
		d.log.Error("Dropping malformed WARC job %q: %v", delivery.Body, err)
		_ = conn.Ack(delivery.DeliveryTag, false)
		return
	}

	var timings domain.Timings

	hash := md5.Sum([]byte(job.WarcURL))
	localFile := filepath.Join(d.cfg.Downloader.WarcDir, hex.EncodeToString(hash[:])+".warc.gz")

	start := time.Now()
	if err := fetchWarc(ctx, d.cfg.Downloader.BaseURL+job.WarcURL, localFile); err != nil {
		d.log.Error("%v: %v", domain.ErrDownloadFailed, err)
		_ = conn.Nack(delivery.DeliveryTag, true)
		return
	}
	timings.DownloadSecs = time.Since(start).Seconds()
	d.log.Info("Downloaded %s (%.1fs)", job.WarcURL, timings.DownloadSecs)

	start = time.Now()
	pages, err := warc.ExtractPages(ctx, localFile, d.cfg.Downloader.MaxWorkers, d.log)
	if err != nil {
		d.log.Error("Extraction failed for %s: %v", job.WarcURL, err)
		d.cleanup(localFile)
		_ = conn.Nack(delivery.DeliveryTag, true)
		return
	}
	timings.LoadSecs = time.Since(start).Seconds()
	d.log.Info("Extracted %d French pages from %s", len(pages), job.WarcURL)

	start = time.Now()
	pub, err := d.newPublisher(ctx)
	if err != nil {
		d.log.Error("Publisher connection failed: %v", err)
		d.cleanup(localFile)
		_ = conn.Nack(delivery.DeliveryTag, true)
		return
	}

	connSecs, err := d.publishPages(ctx, pub, pages)
	if err != nil {
		d.log.Error("Publishing pages for %s failed: %v", job.WarcURL, err)
		pub.Close()
		d.cleanup(localFile)
		_ = conn.Nack(delivery.DeliveryTag, true)
		return
	}
	timings.ConnectionSecs = connSecs
	timings.ProcessingSecs = time.Since(start).Seconds()

	pub.Close()
	d.cleanup(localFile)

	if err := conn.Ack(delivery.DeliveryTag, false); err != nil {
		d.log.Error("Ack failed for %s: %v", job.WarcURL, err)
		return
	}

	d.emit.Emit(domain.TelemetryEvent{
		Step:    domain.StepWarc,
		Machine: d.cfg.Machine,
		WarcURL: job.WarcURL,
		Pages:   len(pages),
		Timings: timings,
	})
}

// publishPages forwards every extracted page to the vectorization queue and
// returns the publisher's total connection time, including rebuilds that
// happened mid-file. The publisher handles per-message retries; an error here
// means retries are exhausted and the whole file must be requeued.
func (d *Downloader) publishPages(ctx context.Context, pub pagePublisher, pages []domain.PageRecord) (float64, error) {
	for _, page := range pages {
		if err := pub.Publish(ctx, page); err != nil {
			return pub.ConnSecs(), err
		}
		d.log.Debug("Queued page %s", page.URL)
	}
	return pub.ConnSecs(), nil
}

// cleanup removes the staging file. Best-effort: disk space matters more to
// the next job than this one's bookkeeping.
func (d *Downloader) cleanup(localFile string) {
	if err := os.Remove(localFile); err != nil {
		d.log.Warn("Could not remove %s: %v", localFile, err)
	}
}
