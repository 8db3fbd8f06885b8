package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"triage_worker/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionKV = "triage_kv"

// KVAdapter implements out.KVStore with one document per key.
type KVAdapter struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ out.KVStore = (*KVAdapter)(nil)

type kvDocument struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

// NewKVAdapter creates the adapter. Close disconnects client.
func NewKVAdapter(client *mongo.Client, database string) *KVAdapter {
	return &KVAdapter{
		client:     client,
		collection: client.Database(database).Collection(collectionKV),
	}
}

func (a *KVAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	var doc kvDocument
	err := a.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return doc.Value, true, nil
}

func (a *KVAdapter) Set(ctx context.Context, key, value string) error {
	opts := options.Replace().SetUpsert(true)
	_, err := a.collection.ReplaceOne(ctx, bson.M{"_id": key}, kvDocument{Key: key, Value: value}, opts)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (a *KVAdapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := a.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	return nil
}

func (a *KVAdapter) List(ctx context.Context, prefix string) (map[string]string, error) {
	cursor, err := a.collection.Find(ctx, prefixFilter(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	defer cursor.Close(ctx)

	var docs []kvDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}

	result := make(map[string]string, len(docs))
	for _, d := range docs {
		result[d.Key] = d.Value
	}
	return result, nil
}

func (a *KVAdapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

// prefixFilter matches keys starting with prefix; an anchored regex can use the _id index.
func prefixFilter(prefix string) bson.M {
	if prefix == "" {
		return bson.M{}
	}
	return bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
}
