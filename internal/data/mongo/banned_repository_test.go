package mongo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/linebroker/internal/domain/banned"
	"github.com/linebroker/internal/domain/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBannedRepository_RecordFailure(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("upserts and returns the updated record", func(mt *mtest.T) {
		repo := NewBannedRepository(newTestLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "service_id", Value: "whatsapp"},
			{Key: "phone_number", Value: "+15550100"},
			{Key: "carrier", Value: "acme"},
			{Key: "fail_count", Value: int32(2)},
			{Key: "last_failed_at", Value: at},
		}}))

		record, err := repo.RecordFailure(context.Background(), banned.Failure{
			PhoneNumber: "+15550100", ServiceID: "whatsapp", Carrier: "acme", At: at,
		})
		require.NoError(mt, err)
		assert.Equal(mt, 2, record.FailCount)
		assert.Equal(mt, "acme", record.Carrier)
		assert.True(mt, at.Equal(record.LastFailedAt))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "findAndModify", started.CommandName)
		assert.True(mt, started.Command.Lookup("upsert").Boolean())
		assert.True(mt, started.Command.Lookup("new").Boolean())
		assert.Equal(mt, int32(1), started.Command.Lookup("update", "$inc", "fail_count").Int32())
	})

	mt.Run("command error", func(mt *mtest.T) {
		repo := NewBannedRepository(newTestLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad update"}))

		_, err := repo.RecordFailure(context.Background(), banned.Failure{PhoneNumber: "+1", ServiceID: "x", At: at})
		assert.ErrorContains(mt, err, "failed to record line failure")
	})
}

func TestBannedRepository_Get(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		repo := NewBannedRepository(newTestLogger(), mt.DB)
		ns := mt.DB.Name() + "." + BannedCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "service_id", Value: "telegram"},
			{Key: "phone_number", Value: "+15550101"},
			{Key: "fail_count", Value: int32(4)},
		}))

		record, err := repo.Get(context.Background(), "telegram", "+15550101")
		require.NoError(mt, err)
		assert.Equal(mt, 4, record.FailCount)
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := NewBannedRepository(newTestLogger(), mt.DB)
		ns := mt.DB.Name() + "." + BannedCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.Get(context.Background(), "telegram", "+15550199")
		assert.ErrorIs(mt, err, banned.ErrRecordNotFound{ServiceID: "telegram", PhoneNumber: "+15550199"})
		assert.ErrorIs(mt, err, shared.ErrNotFound)
	})
}

func TestBannedRepository_TopOffenders(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sorted by fail count", func(mt *mtest.T) {
		repo := NewBannedRepository(newTestLogger(), mt.DB)
		ns := mt.DB.Name() + "." + BannedCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "service_id", Value: "google"}, {Key: "phone_number", Value: "+1"}, {Key: "fail_count", Value: int32(9)}},
			bson.D{{Key: "service_id", Value: "google"}, {Key: "phone_number", Value: "+2"}, {Key: "fail_count", Value: int32(3)}},
		))

		records, err := repo.TopOffenders(context.Background(), "google", 3, 10)
		require.NoError(mt, err)
		require.Len(mt, records, 2)
		assert.Equal(mt, "+1", records[0].PhoneNumber)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "google", started.Command.Lookup("filter", "service_id").StringValue())
		assert.Equal(mt, int32(3), started.Command.Lookup("filter", "fail_count", "$gte").Int32())
	})
}

func TestBannedRepository_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates indexes", func(mt *mtest.T) {
		repo := NewBannedRepository(newTestLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, repo.EnsureIndexes(context.Background()))
		assert.Equal(mt, "createIndexes", mt.GetStartedEvent().CommandName)
	})
}
