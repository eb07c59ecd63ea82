package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mirrorCollection holds one document per aggregate key.
const mirrorCollection = "aggregates"

// mirrorDocument is the mirror's persisted shape. The aggregate itself is
// kept as raw JSON text so both sides compare the same canonical bytes.
type mirrorDocument struct {
	Key       string    `bson:"_id"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Mirror is the MongoDB-backed secondary store. It is never the source of
// truth except during reconciliation, where its value may win.
type Mirror struct {
	coll *mongo.Collection
}

// ConnectMirror dials MongoDB and pings it once so a bad URI fails at
// startup rather than on the first write.
func ConnectMirror(ctx context.Context, uri, database string) (*Mirror, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &Mirror{coll: client.Database(database).Collection(mirrorCollection)}, nil
}

// Collection exposes the underlying collection for the change-stream
// listener.
func (m *Mirror) Collection() *mongo.Collection {
	return m.coll
}

// Get loads the mirrored document for key.
func (m *Mirror) Get(ctx context.Context, key string) (*Document, error) {
	var row mirrorDocument
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Document{
		Key:       row.Key,
		Data:      json.RawMessage(row.Data),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Set upserts the mirrored document for key.
func (m *Mirror) Set(ctx context.Context, key string, data json.RawMessage) error {
	row := mirrorDocument{
		Key:       key,
		Data:      string(data),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": key}, row, options.Replace().SetUpsert(true))
	return err
}
