package reconcile

import (
	"context"
	"encoding/json"
	"log"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/WilliamCarlos132/site4me/internal/stats"
)

// changeEvent is the slice of a change-stream document we care about.
type changeEvent struct {
	FullDocument struct {
		Key  string `bson:"_id"`
		Data string `bson:"data"`
	} `bson:"fullDocument"`
}

// Watch tails the mirror collection's change stream and applies remote
// writes to the local store as they happen, instead of waiting for the
// next periodic pass. It blocks until ctx is cancelled, reopening the
// stream after transient failures.
func (e *Engine) Watch(ctx context.Context, coll *mongo.Collection) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{
				{Key: "$in", Value: bson.A{"insert", "update", "replace"}},
			}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	for ctx.Err() == nil {
		cs, err := coll.Watch(ctx, pipeline, opts)
		if err != nil {
			log.Printf("mirror watch: open failed: %v (retrying)", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
			}
			continue
		}
		e.consume(ctx, cs)
		_ = cs.Close(context.Background())
	}
}

func (e *Engine) consume(ctx context.Context, cs *mongo.ChangeStream) {
	for cs.Next(ctx) {
		var evt changeEvent
		if err := cs.Decode(&evt); err != nil {
			log.Printf("mirror watch: decode failed: %v", err)
			continue
		}
		key := evt.FullDocument.Key
		if !slices.Contains(stats.AllKeys, key) {
			continue
		}
		if err := e.ApplyRemote(ctx, key, json.RawMessage(evt.FullDocument.Data)); err != nil {
			log.Printf("mirror watch: apply %s failed: %v", key, err)
		}
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		log.Printf("mirror watch: stream ended: %v (reopening)", err)
	}
}
