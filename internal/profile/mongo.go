package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"careerlens/internal/domain"
)

// MongoStore keeps one profile document per uid, keyed by _id.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// ConnectMongo dials uri and returns a store over database.collection plus
// a func that disconnects the client.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoStore, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return NewMongoStore(client.Database(database).Collection(collection)), client.Disconnect, nil
}

func (m *MongoStore) Get(ctx context.Context, uid string) (domain.UserProfile, bool, error) {
	p := domain.DefaultProfile(time.Time{})
	err := m.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.UserProfile{}, false, nil
	}
	if err != nil {
		return domain.UserProfile{}, false, err
	}
	return p, true, nil
}

// Upsert merges fields with $set and stamps createdAt only on insert.
func (m *MongoStore) Upsert(ctx context.Context, uid string, fields map[string]any, now time.Time) error {
	set := bson.M{"updatedAt": now}
	for k, v := range fields {
		set[k] = v
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := m.coll.UpdateOne(ctx, bson.M{"_id": uid}, update, options.Update().SetUpsert(true))
	return err
}
