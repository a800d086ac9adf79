package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goportfolio/internal/core"
	"goportfolio/internal/storage"
)

const snapshotCollection = "bucket_snapshots"

type snapshotDocument struct {
	Key       string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	ExpiresAt time.Time `bson:"expires_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBStore implements Store in a MongoDB collection with a TTL index.
type MongoDBStore struct {
	conn       storage.Storage
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoDBStore ensures the TTL index exists. The store takes ownership of
// conn and closes it on Close.
func NewMongoDBStore(ctx context.Context, conn storage.Storage) (*MongoDBStore, error) {
	db := conn.MongoDatabase()
	if db == nil {
		return nil, fmt.Errorf("mongodb store requires a mongodb connection, got %s", conn.Type())
	}

	coll := db.Collection(snapshotCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create TTL index: %w", err)
	}

	return &MongoDBStore{conn: conn, collection: coll, now: time.Now}, nil
}

// Get retrieves an unexpired snapshot. The TTL monitor runs about once a
// minute, so expiry is also checked on read.
func (s *MongoDBStore) Get(ctx context.Context, key string) (*core.BucketSnapshot, error) {
	var doc snapshotDocument
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot from mongodb: %w", err)
	}

	return decodeRecord(doc.Payload, s.now())
}

// Set upserts a snapshot.
func (s *MongoDBStore) Set(ctx context.Context, key string, snap *core.BucketSnapshot, ttl time.Duration) error {
	ttl = effectiveTTL(ttl)
	now := s.now()
	expiresAt := now.Add(ttl)
	data, err := encodeRecord(snap, expiresAt)
	if err != nil {
		return err
	}

	doc := snapshotDocument{Key: key, Payload: data, ExpiresAt: expiresAt.UTC(), UpdatedAt: now.UTC()}
	_, err = s.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write snapshot to mongodb: %w", err)
	}
	return nil
}

func (s *MongoDBStore) Type() string { return TypeMongoDB }

func (s *MongoDBStore) Close() error {
	return s.conn.Close()
}
