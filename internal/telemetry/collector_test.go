package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cocosjn/warcvec/internal/domain"
)

func TestRoute(t *testing.T) {
	coll, ok := Route(domain.StepWarc)
	require.True(t, ok)
	assert.Equal(t, WarcLogs, coll)

	coll, ok = Route(domain.StepVector)
	require.True(t, ok)
	assert.Equal(t, VectorLogs, coll)

	// Both the historical and the batched discriminator land in index_logs.
	coll, ok = Route("index")
	require.True(t, ok)
	assert.Equal(t, IndexLogs, coll)

	coll, ok = Route(domain.StepIndexBatch)
	require.True(t, ok)
	assert.Equal(t, IndexLogs, coll)

	_, ok = Route("unknown")
	assert.False(t, ok)
}

func TestDecodeEvent(t *testing.T) {
	payload := []byte(`{"step":"warc","machine":"host-1","warc_url":"a.warc.gz","pages":42,"download_secs":3.5}`)
	received := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	coll, doc, err := DecodeEvent(payload, received)
	require.NoError(t, err)

	assert.Equal(t, WarcLogs, coll)
	assert.Equal(t, received, doc["Created_at"])
	assert.Equal(t, "host-1", doc["machine"])
	assert.Equal(t, "a.warc.gz", doc["warc_url"])
	assert.Equal(t, float64(42), doc["pages"])

	// The discriminator is routing metadata, not payload.
	_, present := doc["step"]
	assert.False(t, present)
}

func TestDecodeEventUnknownStep(t *testing.T) {
	_, _, err := DecodeEvent([]byte(`{"step":"mystery"}`), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTelemetry)
}

func TestDecodeEventMissingStep(t *testing.T) {
	_, _, err := DecodeEvent([]byte(`{"machine":"host-1"}`), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTelemetry)
}

func TestDecodeEventMalformed(t *testing.T) {
	_, _, err := DecodeEvent([]byte("{nope"), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTelemetry)
}

func TestMetaFieldsPerCollection(t *testing.T) {
	assert.Equal(t, "warc_url", metaFields[WarcLogs])
	assert.Equal(t, "url", metaFields[VectorLogs])
	assert.Equal(t, "url", metaFields[IndexLogs])
}
