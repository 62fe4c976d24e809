package telemetry

import (
	"context"
	"fmt"
	"net/url"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/logger"
)

// Collection names, one per pipeline step.
const (
	WarcLogs   = "warc_logs"
	VectorLogs = "vector_logs"
	IndexLogs  = "index_logs"
)

// metaFields maps each time-series collection to its meta field. The warc
// step is keyed by the WARC path, the others by page URL.
var metaFields = map[string]string{
	WarcLogs:   "warc_url",
	VectorLogs: "url",
	IndexLogs:  "url",
}

// Store persists telemetry events into per-step Mongo time-series
// collections, all sharing the Created_at time field at seconds granularity.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

func NewStore(ctx context.Context, cfg config.MongoConfig, log *logger.Logger) (*Store, error) {
	uri := fmt.Sprintf("mongodb://%s:%d/?authSource=%s", cfg.Host, cfg.Port, cfg.AuthSource)
	if cfg.User != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=%s",
			url.QueryEscape(cfg.User), url.QueryEscape(cfg.Pass), cfg.Host, cfg.Port, cfg.AuthSource)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(cfg.Database), log: log}, nil
}

// EnsureCollections creates the time-series collections that do not exist
// yet. Existing ones are left untouched.
func (s *Store) EnsureCollections(ctx context.Context) error {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}

	for coll, meta := range metaFields {
		if existing[coll] {
			continue
		}

		ts := options.TimeSeries().
			SetTimeField("Created_at").
			SetMetaField(meta).
			SetGranularity("seconds")

		if err := s.db.CreateCollection(ctx, coll, options.CreateCollection().SetTimeSeriesOptions(ts)); err != nil {
			return fmt.Errorf("creating collection %s: %w", coll, err)
		}
		s.log.Info("Created time-series collection %s (meta %s)", coll, meta)
	}

	return nil
}

// Insert writes one event document into the named collection.
func (s *Store) Insert(ctx context.Context, coll string, doc bson.M) error {
	_, err := s.db.Collection(coll).InsertOne(ctx, doc)
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
