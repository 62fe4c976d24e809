package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/cocosjn/warcvec/internal/domain"
)

// Config is the full environment-driven configuration for every pipeline
// process. All knobs come from environment variables; the variable names
// match the deployment surface (RABBITMQ_HOST, ES_HOSTS, MONGO_HOST, ...).
type Config struct {
	Rabbit     RabbitConfig
	Queues     QueueConfig
	Elastic    ElasticConfig
	Mongo      MongoConfig
	MQTT       MQTTConfig
	Encoder    EncoderConfig
	Downloader DownloaderConfig
	Vectorizer VectorizerConfig
	Indexer    IndexerConfig
	Search     SearchConfig

	// Machine tags logs and telemetry so multi-host runs stay attributable.
	Machine  string
	LogLevel string
}

type RabbitConfig struct {
	Host     string
	User     string
	Password string
	// RetryDelaySecs is the fixed pause between reconnect attempts.
	RetryDelaySecs int
}

type QueueConfig struct {
	Download      string
	Vectorization string
	Indexing      string
}

type ElasticConfig struct {
	Hosts []string
	Index string
	Dims  int
}

type MongoConfig struct {
	Host       string
	Port       int
	User       string
	Pass       string
	AuthSource string
	Database   string
}

type MQTTConfig struct {
	Host  string
	Port  int
	Topic string
}

type EncoderConfig struct {
	URL string
	// BatchSize is the GPU mini-batch size (EMBED_BATCH_SIZE).
	BatchSize int
}

type DownloaderConfig struct {
	MaxWorkers int
	WarcDir    string
	BaseURL    string
}

type VectorizerConfig struct {
	// DocBatchSize bounds both the broker prefetch and the internal queue.
	DocBatchSize int
}

type IndexerConfig struct {
	BatchSize int
	// AckAfterBulk trades throughput for durability: ack only once the bulk
	// request succeeded instead of before dispatching it.
	AckAfterBulk bool
}

type SearchConfig struct {
	Port string
}

// env maps each viper key to its environment variable.
var env = map[string]string{
	"rabbit.host":             "RABBITMQ_HOST",
	"rabbit.user":             "RABBITMQ_USER",
	"rabbit.password":         "RABBITMQ_PASSWORD",
	"rabbit.retrydelaysecs":   "RABBITMQ_RETRY_DELAY",
	"queues.download":         "DOWNLOAD_QUEUE",
	"queues.vectorization":    "VECTORIZATION_QUEUE",
	"queues.indexing":         "INDEXING_QUEUE",
	"elastic.hosts":           "ES_HOSTS",
	"elastic.index":           "ES_INDEX",
	"elastic.dims":            "ES_DIMS",
	"mongo.host":              "MONGO_HOST",
	"mongo.port":              "MONGO_PORT",
	"mongo.user":              "MONGO_USER",
	"mongo.pass":              "MONGO_PASS",
	"mongo.authsource":        "MONGO_AUTH_SRC",
	"mongo.database":          "MONGO_DATABASE",
	"mqtt.host":               "MQTT_HOST",
	"mqtt.port":               "MQTT_PORT",
	"mqtt.topic":              "MQTT_TOPIC",
	"encoder.url":             "ENCODER_URL",
	"encoder.batchsize":       "EMBED_BATCH_SIZE",
	"downloader.maxworkers":   "MAX_WORKERS",
	"downloader.warcdir":      "WARC_DIR",
	"downloader.baseurl":      "WARC_BASE_URL",
	"vectorizer.docbatchsize": "DOC_BATCH_SIZE",
	"indexer.batchsize":       "BATCH_SIZE",
	"indexer.ackafterbulk":    "INDEX_ACK_AFTER_BULK",
	"search.port":             "SEARCH_PORT",
	"machine":                 "MACHINE",
	"loglevel":                "LOG_LEVEL",
}

func Load() (*Config, error) {
	v := viper.New()

	// Set Defaults
	v.SetDefault("rabbit.host", "localhost")
	v.SetDefault("rabbit.user", "guest")
	v.SetDefault("rabbit.password", "guest")
	v.SetDefault("rabbit.retrydelaysecs", 5)
	v.SetDefault("queues.download", "downloads")
	v.SetDefault("queues.vectorization", "vectorize")
	v.SetDefault("queues.indexing", "index")
	v.SetDefault("elastic.hosts", "http://localhost:9200")
	v.SetDefault("elastic.index", "pages")
	v.SetDefault("elastic.dims", domain.EmbeddingDims)
	v.SetDefault("mongo.host", "localhost")
	v.SetDefault("mongo.port", 27017)
	v.SetDefault("mongo.user", "")
	v.SetDefault("mongo.pass", "")
	v.SetDefault("mongo.authsource", "admin")
	v.SetDefault("mongo.database", "logger")
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic", "logger")
	v.SetDefault("encoder.url", "http://localhost:8501")
	v.SetDefault("encoder.batchsize", 512)
	v.SetDefault("downloader.maxworkers", 4)
	v.SetDefault("downloader.warcdir", "./warc")
	v.SetDefault("downloader.baseurl", "https://data.commoncrawl.org/")
	v.SetDefault("vectorizer.docbatchsize", 1000)
	v.SetDefault("indexer.batchsize", 1000)
	v.SetDefault("indexer.ackafterbulk", false)
	v.SetDefault("search.port", "8080")
	v.SetDefault("machine", "")
	v.SetDefault("loglevel", "info")

	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("binding %s: %w", name, err)
		}
	}

	cfg := &Config{
		Rabbit: RabbitConfig{
			Host:           v.GetString("rabbit.host"),
			User:           v.GetString("rabbit.user"),
			Password:       v.GetString("rabbit.password"),
			RetryDelaySecs: v.GetInt("rabbit.retrydelaysecs"),
		},
		Queues: QueueConfig{
			Download:      v.GetString("queues.download"),
			Vectorization: v.GetString("queues.vectorization"),
			Indexing:      v.GetString("queues.indexing"),
		},
		Elastic: ElasticConfig{
			Hosts: splitHosts(v.GetString("elastic.hosts")),
			Index: v.GetString("elastic.index"),
			Dims:  v.GetInt("elastic.dims"),
		},
		Mongo: MongoConfig{
			Host:       v.GetString("mongo.host"),
			Port:       v.GetInt("mongo.port"),
			User:       v.GetString("mongo.user"),
			Pass:       v.GetString("mongo.pass"),
			AuthSource: v.GetString("mongo.authsource"),
			Database:   v.GetString("mongo.database"),
		},
		MQTT: MQTTConfig{
			Host:  v.GetString("mqtt.host"),
			Port:  v.GetInt("mqtt.port"),
			Topic: v.GetString("mqtt.topic"),
		},
		Encoder: EncoderConfig{
			URL:       v.GetString("encoder.url"),
			BatchSize: v.GetInt("encoder.batchsize"),
		},
		Downloader: DownloaderConfig{
			MaxWorkers: v.GetInt("downloader.maxworkers"),
			WarcDir:    v.GetString("downloader.warcdir"),
			BaseURL:    v.GetString("downloader.baseurl"),
		},
		Vectorizer: VectorizerConfig{
			DocBatchSize: v.GetInt("vectorizer.docbatchsize"),
		},
		Indexer: IndexerConfig{
			BatchSize:    v.GetInt("indexer.batchsize"),
			AckAfterBulk: v.GetBool("indexer.ackafterbulk"),
		},
		Search:   SearchConfig{Port: v.GetString("search.port")},
		Machine:  v.GetString("machine"),
		LogLevel: v.GetString("loglevel"),
	}

	if cfg.Machine == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		cfg.Machine = host
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitHosts parses the comma-separated ES_HOSTS value.
func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func (c *Config) validate() error {
	if c.Rabbit.Host == "" {
		return errors.New("RABBITMQ_HOST is required")
	}

	if c.Rabbit.RetryDelaySecs <= 0 {
		c.Rabbit.RetryDelaySecs = 5
	}

	if len(c.Elastic.Hosts) == 0 {
		return errors.New("ES_HOSTS must contain at least one address")
	}

	if c.Elastic.Dims <= 0 {
		return fmt.Errorf("ES_DIMS must be positive, got %d", c.Elastic.Dims)
	}

	if c.Downloader.MaxWorkers <= 0 {
		// Default to a sane value
		c.Downloader.MaxWorkers = 4
	}

	if c.Vectorizer.DocBatchSize <= 0 {
		c.Vectorizer.DocBatchSize = 1000
	}

	if c.Indexer.BatchSize <= 0 {
		c.Indexer.BatchSize = 1000
	}

	if c.Encoder.BatchSize <= 0 {
		c.Encoder.BatchSize = 512
	}

	return nil
}
