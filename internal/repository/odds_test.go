//go:build integration

package repository

import (
	"database/sql"
	"testing"
	"time"

	"oddscollector/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOddsBatch(eventID int64) []models.OddsRecord {
	quoted := sql.NullTime{Time: time.Unix(1700000000, 0), Valid: true}
	return []models.OddsRecord{
		{
			EventID:       eventID,
			Bookmaker:     models.DefaultBookmaker,
			Market:        models.MarketHeadToHead,
			OddsTimestamp: quoted,
			Data:          models.OddsData{Home: ptr(1.8), Draw: ptr(3.4), Away: ptr(4.5)},
		},
		{
			EventID:       eventID,
			Bookmaker:     models.DefaultBookmaker,
			Market:        models.MarketAsianHandicap,
			OddsTimestamp: quoted,
			Data:          models.OddsData{Home: ptr(1.9), Away: ptr(1.9), Handicap: "-0.5", AwayLine: "0.5"},
		},
		{
			EventID: eventID,
			Market:  models.MarketOverUnder,
			Data:    models.OddsData{Line: "2.5", Over: ptr(1.85), Under: ptr(1.95)},
		},
	}
}

func TestOddsRepository_InsertBatchIsIdempotent(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	event := testEvent(testEventIDMin+100, time.Now())
	_, err := db.Events.Upsert(ctx, event)
	require.NoError(t, err)

	n, err := db.Odds.InsertBatch(ctx, testOddsBatch(event.EventID))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = db.Odds.InsertBatch(ctx, testOddsBatch(event.EventID))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "identical batch inserts nothing")

	records, err := db.Odds.ListForEvent(ctx, event.EventID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.MarketHeadToHead, records[0].Market)
	assert.Equal(t, models.DefaultBookmaker, records[2].Bookmaker, "empty bookmaker defaults")
	assert.Equal(t, "0.5", records[1].Data.AwayLine)

	// A changed price is a new snapshot
	changed := testOddsBatch(event.EventID)[:1]
	changed[0].Data.Home = ptr(1.75)
	n, err = db.Odds.InsertBatch(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOddsRepository_BadRecordIsSkipped(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	event := testEvent(testEventIDMin+110, time.Now())
	_, err := db.Events.Upsert(ctx, event)
	require.NoError(t, err)

	batch := testOddsBatch(event.EventID)
	// Unknown event violates the foreign key
	batch[1].EventID = testEventIDMax - 1

	err = InTx(ctx, db.Pool, func(tx pgx.Tx) error {
		n, err := NewStore(tx).Odds.InsertBatch(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 2, n, "the failing record does not abort the batch")
		return nil
	})
	require.NoError(t, err)

	records, err := db.Odds.ListForEvent(ctx, event.EventID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
