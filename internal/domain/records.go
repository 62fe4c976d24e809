package domain

// EmbeddingDims is the output dimensionality of the sentence-embedding model
// (all-MiniLM-L6-v2 family). Every vector crossing the indexing queue must
// have exactly this length.
const EmbeddingDims = 384

// WarcJob is the payload carried on the download queue: one relative WARC
// path under the archive host per job.
type WarcJob struct {
	WarcURL string `json:"warc_url"`
}

// PageRecord is the payload carried on the vectorization queue. Text is the
// extracted main content of the page; it is non-empty and detected as French
// at publication time. H1 may be empty.
type PageRecord struct {
	URL  string `json:"url"`
	H1   string `json:"h1"`
	Text string `json:"text"`
}

// EmbeddingRecord is the payload carried on the indexing queue. Embedding is
// the L2-normalized mean of the page's segment embeddings, or all zeros when
// the mean had zero norm.
type EmbeddingRecord struct {
	URL       string    `json:"url"`
	H1        string    `json:"h1"`
	Embedding []float32 `json:"embedding"`
}

// IndexDocument is the persisted form in the search index. It mirrors
// EmbeddingRecord; the split keeps queue payloads and index mappings free to
// diverge.
type IndexDocument struct {
	URL       string    `json:"url"`
	H1        string    `json:"h1"`
	Embedding []float32 `json:"embedding"`
}

// Telemetry step discriminators. The collector routes on these.
const (
	StepWarc       = "warc"
	StepVector     = "vector"
	StepIndexBatch = "index_batch_async"
)

// TelemetryEvent is published on the MQTT logger topic by every worker.
// The collector pops Step, stamps the receipt time and persists the rest as
// the metadata bag of the step's time-series collection.
type TelemetryEvent struct {
	Step    string `json:"step"`
	Machine string `json:"machine,omitempty"`
	BatchID string `json:"batch_id,omitempty"`

	// Exactly one of these identifies the unit of work, depending on Step.
	WarcURL string `json:"warc_url,omitempty"`
	URL     string `json:"url,omitempty"`

	Pages     int `json:"pages,omitempty"`
	Segments  int `json:"segments,omitempty"`
	BatchSize int `json:"batch_size,omitempty"`

	Timings Timings `json:"timings"`
}

// Timings is the per-unit phase breakdown, in seconds. Workers fill only the
// phases they have; zero values are still reported so dashboards get stable
// field sets per step.
type Timings struct {
	DownloadSecs   float64 `json:"download_secs,omitempty"`
	LoadSecs       float64 `json:"load_secs,omitempty"`
	ProcessingSecs float64 `json:"processing_secs,omitempty"`
	SegmentSecs    float64 `json:"segment_secs,omitempty"`
	EncodeSecs     float64 `json:"encode_secs,omitempty"`
	ReduceSecs     float64 `json:"reduce_secs,omitempty"`
	BulkSecs       float64 `json:"bulk_secs,omitempty"`
	IndexTotalSecs float64 `json:"index_total_secs,omitempty"`
	ConnectionSecs float64 `json:"connection_secs,omitempty"`
}
