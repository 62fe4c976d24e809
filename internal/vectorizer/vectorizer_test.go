package vectorizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
	"github.com/cocosjn/warcvec/internal/segment"
)

type fakeAcker struct {
	mu   sync.Mutex
	tags []uint64
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tags = append(a.tags, tag)
	return nil
}

type fakePub struct {
	records  []domain.EmbeddingRecord
	failURL  string
	connSecs float64
}

func (p *fakePub) Publish(_ context.Context, v any) error {
	rec := v.(domain.EmbeddingRecord)
	if p.failURL != "" && rec.URL == p.failURL {
		return fmt.Errorf("%w: queue index", domain.ErrPublishExhausted)
	}
	p.records = append(p.records, rec)
	return nil
}

func (p *fakePub) ConnSecs() float64 { return p.connSecs }

// fakeEncoder returns a constant nonzero vector per input text.
type fakeEncoder struct {
	dims  int
	calls int
}

func (e *fakeEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (e *fakeEncoder) Dims() int { return e.dims }

type recordEmitter struct {
	mu     sync.Mutex
	events []domain.TelemetryEvent
}

func (r *recordEmitter) Emit(ev domain.TelemetryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordEmitter) Close() {}

func testVectorizer(t *testing.T, docBatch int) (*Vectorizer, *fakeEncoder, *recordEmitter) {
	t.Helper()

	seg, err := segment.NewFrench()
	require.NoError(t, err)

	cfg := &config.Config{
		Machine:    "test-host",
		Vectorizer: config.VectorizerConfig{DocBatchSize: docBatch},
		Encoder:    config.EncoderConfig{BatchSize: 512},
	}
	enc := &fakeEncoder{dims: 4}
	emit := &recordEmitter{}
	log := logger.NewWithWriter(io.Discard, "vectorizer", "test-host", "error")

	return New(cfg, log, emit, enc, seg), enc, emit
}

func pageTask(t *testing.T, tag uint64, url, text string) task {
	t.Helper()
	body, err := json.Marshal(domain.PageRecord{URL: url, H1: "Titre", Text: text})
	require.NoError(t, err)
	return task{tag: tag, body: body}
}

func TestProcessPublishesAndAcks(t *testing.T) {
	v, _, emit := testVectorizer(t, 10)
	ack := &fakeAcker{}
	pub := &fakePub{}

	pub.connSecs = 1.5

	batch := []task{
		pageTask(t, 1, "https://a.fr/1", "Le chat dort sur le canapé."),
		pageTask(t, 2, "https://a.fr/2", "Le chien joue dans le jardin."),
	}

	require.NoError(t, v.process(context.Background(), ack, pub, batch))

	require.Len(t, pub.records, 2)
	assert.Equal(t, "https://a.fr/1", pub.records[0].URL)
	assert.Equal(t, "Titre", pub.records[0].H1)
	assert.Len(t, pub.records[0].Embedding, 4)

	assert.Equal(t, []uint64{1, 2}, ack.tags)

	require.Len(t, emit.events, 2)
	assert.Equal(t, domain.StepVector, emit.events[0].Step)
	assert.Equal(t, "test-host", emit.events[0].Machine)
	assert.Equal(t, 1, emit.events[0].Segments)
	assert.Equal(t, 1.5, emit.events[0].Timings.ConnectionSecs)
	assert.Equal(t, 1.5, emit.events[1].Timings.ConnectionSecs)
}

func TestProcessDropsMalformed(t *testing.T) {
	v, _, _ := testVectorizer(t, 10)
	ack := &fakeAcker{}
	pub := &fakePub{}

	batch := []task{
		{tag: 7, body: []byte("{not json")},
		pageTask(t, 8, "https://a.fr/1", "Le chat dort sur le canapé."),
	}

	require.NoError(t, v.process(context.Background(), ack, pub, batch))

	// The malformed delivery is acked away, the valid one goes through.
	assert.Equal(t, []uint64{7, 8}, ack.tags)
	require.Len(t, pub.records, 1)
	assert.Equal(t, "https://a.fr/1", pub.records[0].URL)
}

func TestProcessDropsEmptyText(t *testing.T) {
	v, _, _ := testVectorizer(t, 10)
	ack := &fakeAcker{}
	pub := &fakePub{}

	batch := []task{pageTask(t, 3, "https://a.fr/vide", "")}

	require.NoError(t, v.process(context.Background(), ack, pub, batch))
	assert.Equal(t, []uint64{3}, ack.tags)
	assert.Empty(t, pub.records)
}

func TestProcessExhaustedPublishLeavesUnacked(t *testing.T) {
	v, _, _ := testVectorizer(t, 10)
	ack := &fakeAcker{}
	pub := &fakePub{failURL: "https://a.fr/2"}

	batch := []task{
		pageTask(t, 1, "https://a.fr/1", "Le chat dort sur le canapé."),
		pageTask(t, 2, "https://a.fr/2", "Le chien joue dans le jardin."),
		pageTask(t, 3, "https://a.fr/3", "Il fait beau aujourd'hui."),
	}

	require.NoError(t, v.process(context.Background(), ack, pub, batch))

	// Tags 1 and 3 acked, tag 2 parked for redelivery.
	assert.Equal(t, []uint64{1, 3}, ack.tags)
	assert.Equal(t, []uint64{2}, v.pending)
	require.Len(t, pub.records, 2)
}

func TestEncodeAllSplitsMiniBatches(t *testing.T) {
	v, enc, _ := testVectorizer(t, 10)
	v.cfg.Encoder.BatchSize = 2

	segs := []string{"a", "b", "c", "d", "e"}
	out, err := v.encodeAll(context.Background(), segs)
	require.NoError(t, err)

	assert.Len(t, out, 5)
	assert.Equal(t, 3, enc.calls)
}

func TestCollectBatchesUpToLimit(t *testing.T) {
	v, _, _ := testVectorizer(t, 3)

	internal := make(chan task, 8)
	for i := 1; i <= 5; i++ {
		internal <- task{tag: uint64(i)}
	}

	batch, ok := v.collect(context.Background(), internal)
	require.True(t, ok)
	require.Len(t, batch, 3)
	assert.Equal(t, uint64(1), batch[0].tag)
	assert.Equal(t, uint64(3), batch[2].tag)
}

func TestCollectEmptyPoll(t *testing.T) {
	v, _, _ := testVectorizer(t, 3)

	internal := make(chan task)
	start := time.Now()
	batch, ok := v.collect(context.Background(), internal)

	require.True(t, ok)
	assert.Empty(t, batch)
	assert.GreaterOrEqual(t, time.Since(start), pollInterval)
}

func TestCollectClosedQueue(t *testing.T) {
	v, _, _ := testVectorizer(t, 3)

	internal := make(chan task)
	close(internal)

	batch, ok := v.collect(context.Background(), internal)
	assert.False(t, ok)
	assert.Empty(t, batch)
}

func TestCollectPartialBatchOnClose(t *testing.T) {
	v, _, _ := testVectorizer(t, 10)

	internal := make(chan task, 2)
	internal <- task{tag: 1}
	internal <- task{tag: 2}
	close(internal)

	batch, ok := v.collect(context.Background(), internal)
	require.True(t, ok)
	assert.Len(t, batch, 2)
}
