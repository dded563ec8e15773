package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"oddscollector/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// OddsRepository handles odds snapshot database operations
type OddsRepository struct {
	db DBTX
}

// InsertBatch inserts each record in its own savepoint. Exact duplicates
// count as zero rows, and a record that fails is logged and skipped
// without aborting the rest. Returns the number of newly inserted rows.
// An error is returned only when the connection itself is unusable.
func (r *OddsRepository) InsertBatch(ctx context.Context, records []models.OddsRecord) (int, error) {
	query := `
		INSERT INTO odds (event_id, bookmaker, odds_market, odds_timestamp, odds_data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`

	inserted := 0
	for i := range records {
		rec := &records[i]

		data, err := json.Marshal(rec.Data)
		if err != nil {
			log.Warn().Err(err).Int64("event_id", rec.EventID).Str("market", rec.Market.String()).
				Msg("Skipping odds record with unencodable payload")
			continue
		}

		bookmaker := rec.Bookmaker
		if bookmaker == "" {
			bookmaker = models.DefaultBookmaker
		}

		sp, err := r.db.Begin(ctx)
		if err != nil {
			return inserted, fmt.Errorf("failed to open savepoint for odds: %w", err)
		}

		start := time.Now()
		tag, err := sp.Exec(ctx, query, rec.EventID, bookmaker, rec.Market.String(), rec.OddsTimestamp, data)
		observe("insert", "odds", start, err)

		if err != nil {
			log.Warn().
				Err(err).
				Int64("event_id", rec.EventID).
				Str("market", rec.Market.String()).
				Msg("Skipping odds record that failed to insert")
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return inserted, fmt.Errorf("failed to roll back odds savepoint: %w", rbErr)
			}
			continue
		}

		if err := sp.Commit(ctx); err != nil {
			return inserted, fmt.Errorf("failed to release odds savepoint: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

// ListForEvent returns every stored snapshot of an event, oldest first
func (r *OddsRepository) ListForEvent(ctx context.Context, eventID int64) ([]models.OddsRecord, error) {
	query := `
		SELECT id, event_id, bookmaker, odds_market, odds_timestamp, odds_data, collection_timestamp
		FROM odds
		WHERE event_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list odds for event %d: %w", eventID, err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OddsRecord, error) {
		var (
			rec    models.OddsRecord
			market string
			data   []byte
		)
		if err := row.Scan(&rec.ID, &rec.EventID, &rec.Bookmaker, &market, &rec.OddsTimestamp, &data, &rec.CollectedAt); err != nil {
			return rec, err
		}
		m, err := models.ParseMarket(market)
		if err != nil {
			return rec, err
		}
		rec.Market = m
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return rec, fmt.Errorf("failed to decode odds_data: %w", err)
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan odds for event %d: %w", eventID, err)
	}

	return records, nil
}
