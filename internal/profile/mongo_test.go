package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get decodes stored profile", func(mt *mtest.T) {
		created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "careerlens.profiles", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u1"},
			{Key: "name", Value: "Ada"},
			{Key: "skills", Value: bson.A{bson.D{{Key: "value", Value: "Go"}}}},
			{Key: "createdAt", Value: created},
		}))

		p, found, err := NewMongoStore(mt.Coll).Get(context.Background(), "u1")
		require.NoError(mt, err)
		assert.True(mt, found)
		assert.Equal(mt, "Ada", p.Name)
		require.Len(mt, p.Skills, 1)
		assert.Equal(mt, "Go", p.Skills[0].Value)
		assert.True(mt, p.CreatedAt.Equal(created))
		assert.NotNil(mt, p.Interests, "missing arrays keep the default shape")
	})

	mt.Run("get reports missing profile", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "careerlens.profiles", mtest.FirstBatch))

		_, found, err := NewMongoStore(mt.Coll).Get(context.Background(), "nobody")
		require.NoError(mt, err)
		assert.False(mt, found)
	})

	mt.Run("upsert merges with set and setOnInsert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		err := NewMongoStore(mt.Coll).Upsert(context.Background(), "u1", map[string]any{"summary": "Backend engineer"}, now)
		require.NoError(mt, err)

		cmd := mt.GetStartedEvent().Command
		update := cmd.Lookup("updates", "0")
		assert.True(mt, update.Document().Lookup("upsert").Boolean())
		assert.Equal(mt, "u1", update.Document().Lookup("q", "_id").StringValue())
		assert.Equal(mt, "Backend engineer", update.Document().Lookup("u", "$set", "summary").StringValue())
		_, hasCreated := update.Document().Lookup("u", "$setOnInsert", "createdAt").TimeOK()
		assert.True(mt, hasCreated)
	})
}
