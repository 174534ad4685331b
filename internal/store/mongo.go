package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/pipeline"
)

// MongoConfig selects the target collection.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoSink stores one document per item.
type MongoSink struct {
	client  *mongo.Client
	items   *mongo.Collection
	timeout time.Duration
}

// itemDocument is an Item tagged with the batch it came from.
type itemDocument struct {
	corpus.Item `bson:",inline"`
	TeamID      string    `bson:"team_id"`
	RunID       string    `bson:"run_id"`
	Seq         int       `bson:"seq"`
	CreatedAt   time.Time `bson:"created_at"`
}

// NewMongoSink connects, pings and ensures the lookup indexes exist.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Database == "" {
		cfg.Database = "gocorpus"
	}
	if cfg.Collection == "" {
		cfg.Collection = "items"
	}
	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	s := &MongoSink{client: client, items: client.Database(cfg.Database).Collection(cfg.Collection), timeout: cfg.Timeout}
	_, err = s.items.Indexes().CreateMany(cctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "team_id", Value: 1}, {Key: "source_url", Value: 1}}},
		{Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

// Save inserts every item of b in order.
func (s *MongoSink) Save(ctx context.Context, b *pipeline.Batch) error {
	docs := itemDocuments(b, time.Now().UTC())
	if len(docs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.items.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func itemDocuments(b *pipeline.Batch, now time.Time) []any {
	docs := make([]any, 0, len(b.Result.Items))
	for i, it := range b.Result.Items {
		docs = append(docs, itemDocument{Item: it, TeamID: b.Result.TeamID, RunID: b.RunID, Seq: i, CreatedAt: now})
	}
	return docs
}

// MultiSink saves to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Save(ctx context.Context, b *pipeline.Batch) error {
	for _, s := range m {
		if err := s.Save(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
