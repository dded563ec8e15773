package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oddscollector/ingestion/internal/models"
	"oddscollector/ingestion/internal/normalize"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// EventRepository handles event database operations
type EventRepository struct {
	db DBTX
}

// Upsert inserts or merges an event keyed by event_id.
// Scalar fields are overwritten; final_score, has_odds and last_odds_update
// keep the stored value when the incoming one is NULL.
func (r *EventRepository) Upsert(ctx context.Context, event *models.Event) (int64, error) {
	query := `
		INSERT INTO events (
			event_id, sport_id, league_id, league_name, event_timestamp,
			home_team_id, home_team_name, home_player_name,
			away_team_id, away_team_name, away_player_name,
			final_score, has_odds, last_odds_update
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_id) DO UPDATE SET
			sport_id = EXCLUDED.sport_id,
			league_id = EXCLUDED.league_id,
			league_name = EXCLUDED.league_name,
			event_timestamp = EXCLUDED.event_timestamp,
			home_team_id = EXCLUDED.home_team_id,
			home_team_name = EXCLUDED.home_team_name,
			home_player_name = EXCLUDED.home_player_name,
			away_team_id = EXCLUDED.away_team_id,
			away_team_name = EXCLUDED.away_team_name,
			away_player_name = EXCLUDED.away_player_name,
			final_score = COALESCE(EXCLUDED.final_score, events.final_score),
			has_odds = COALESCE(EXCLUDED.has_odds, events.has_odds),
			last_odds_update = COALESCE(EXCLUDED.last_odds_update, events.last_odds_update),
			updated_at = NOW()
		RETURNING event_id
	`

	start := time.Now()
	var id int64
	err := r.db.QueryRow(
		ctx, query,
		event.EventID, event.SportID, event.LeagueID, event.LeagueName, event.EventTimestamp,
		event.HomeTeamID, event.HomeTeamName, event.HomePlayerName,
		event.AwayTeamID, event.AwayTeamName, event.AwayPlayerName,
		event.FinalScore, event.HasOdds, event.LastOddsUpdate,
	).Scan(&id)
	observe("upsert", "events", start, err)

	if err != nil {
		return 0, fmt.Errorf("failed to upsert event %d: %w", event.EventID, err)
	}

	log.Debug().
		Int64("event_id", id).
		Str("home", event.HomeTeamName).
		Str("away", event.AwayTeamName).
		Msg("Event upserted")

	return id, nil
}

// GetByID retrieves an event by its upstream id
func (r *EventRepository) GetByID(ctx context.Context, eventID int64) (*models.Event, error) {
	query := `
		SELECT event_id, sport_id, league_id, league_name, event_timestamp,
		       home_team_id, home_team_name, home_player_name,
		       away_team_id, away_team_name, away_player_name,
		       final_score, has_odds, last_odds_update, inserted_at, updated_at
		FROM events
		WHERE event_id = $1
	`

	var e models.Event
	err := r.db.QueryRow(ctx, query, eventID).Scan(
		&e.EventID, &e.SportID, &e.LeagueID, &e.LeagueName, &e.EventTimestamp,
		&e.HomeTeamID, &e.HomeTeamName, &e.HomePlayerName,
		&e.AwayTeamID, &e.AwayTeamName, &e.AwayPlayerName,
		&e.FinalScore, &e.HasOdds, &e.LastOddsUpdate, &e.InsertedAt, &e.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %d: %w", eventID, err)
	}

	return &e, nil
}

// UpdateOddsStatus overwrites has_odds and last_odds_update unconditionally
func (r *EventRepository) UpdateOddsStatus(ctx context.Context, eventID int64, hasOdds bool, lastUpdate time.Time) error {
	query := `
		UPDATE events
		SET has_odds = $2, last_odds_update = $3, updated_at = NOW()
		WHERE event_id = $1
	`

	start := time.Now()
	_, err := r.db.Exec(ctx, query, eventID, hasOdds, lastUpdate)
	observe("update_odds_status", "events", start, err)

	if err != nil {
		return fmt.Errorf("failed to update odds status for event %d: %w", eventID, err)
	}
	return nil
}

// retentionCutoff is "now minus daysToKeep" on the local calendar, as an instant
func retentionCutoff(now time.Time, loc *time.Location, daysToKeep int) (time.Time, error) {
	if daysToKeep <= 0 {
		return time.Time{}, fmt.Errorf("days to keep must be positive, got %d", daysToKeep)
	}
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).AddDate(0, 0, -daysToKeep).UTC(), nil
}

// PruneOlderThan deletes events that started before the retention window.
// Odds rows go with them through ON DELETE CASCADE.
func (r *EventRepository) PruneOlderThan(ctx context.Context, daysToKeep int, loc *time.Location) (int64, error) {
	cutoff, err := retentionCutoff(time.Now(), loc, daysToKeep)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE event_timestamp < $1`, cutoff)
	observe("prune", "events", start, err)

	if err != nil {
		return 0, fmt.Errorf("failed to prune events older than %d days: %w", daysToKeep, err)
	}

	deleted := tag.RowsAffected()
	log.Info().
		Int("days_to_keep", daysToKeep).
		Time("cutoff", cutoff).
		Int64("deleted", deleted).
		Msg("Pruned events outside retention window")

	return deleted, nil
}

// ListPendingScores returns events without a score that kicked off before olderThan
func (r *EventRepository) ListPendingScores(ctx context.Context, olderThan time.Time, limit int) ([]models.PendingScore, error) {
	query := `
		SELECT event_id, event_timestamp
		FROM events
		WHERE (final_score IS NULL OR final_score = '')
		  AND event_timestamp < $1
		ORDER BY event_timestamp
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending scores: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingScore
	for rows.Next() {
		var p models.PendingScore
		if err := rows.Scan(&p.EventID, &p.EventTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan pending score: %w", err)
		}
		pending = append(pending, p)
	}

	return pending, rows.Err()
}

// UpdateScore sets final_score if it is still unknown
func (r *EventRepository) UpdateScore(ctx context.Context, eventID int64, score string) (bool, error) {
	query := `
		UPDATE events
		SET final_score = $2, updated_at = NOW()
		WHERE event_id = $1 AND (final_score IS NULL OR final_score = '')
	`

	start := time.Now()
	tag, err := r.db.Exec(ctx, query, eventID, score)
	observe("update_score", "events", start, err)

	if err != nil {
		return false, fmt.Errorf("failed to update score for event %d: %w", eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ScoreLookup fetches the current state of a single event upstream
type ScoreLookup interface {
	FetchEventView(ctx context.Context, eventID int64) (*models.RawEvent, error)
}

// RefreshResult summarises a pending-score refresh
type RefreshResult struct {
	Checked int
	Updated int
	Skipped int
	Failed  int
}

// pendingScoreBatch limits how many events one refresh re-queries
const pendingScoreBatch = 500

// RefreshPendingScores re-queries events that should have finished more than
// threshold ago and stores well-formed scores. Per-event failures are logged
// and skipped.
func (r *EventRepository) RefreshPendingScores(ctx context.Context, threshold time.Duration, lookup ScoreLookup) (RefreshResult, error) {
	var res RefreshResult

	pending, err := r.ListPendingScores(ctx, time.Now().Add(-threshold), pendingScoreBatch)
	if err != nil {
		return res, err
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		res.Checked++

		raw, err := lookup.FetchEventView(ctx, p.EventID)
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Int64("event_id", p.EventID).Msg("Failed to refresh event score")
			continue
		}
		if raw == nil {
			res.Skipped++
			continue
		}

		score, ok := normalize.ParseScore(raw.SS.String())
		if !ok {
			res.Skipped++
			continue
		}

		updated, err := r.UpdateScore(ctx, p.EventID, score)
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Int64("event_id", p.EventID).Msg("Failed to store refreshed score")
			continue
		}
		if updated {
			res.Updated++
			log.Debug().Int64("event_id", p.EventID).Str("score", score).Msg("Score refreshed")
		}
	}

	log.Info().
		Int("checked", res.Checked).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Pending score refresh complete")

	return res, nil
}

// Summary returns store-wide row counts
func (r *EventRepository) Summary(ctx context.Context) (*models.StoreSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE has_odds),
			COUNT(*) FILTER (WHERE final_score IS NULL OR final_score = ''),
			COUNT(*) FILTER (WHERE event_timestamp >= NOW() - INTERVAL '24 hours'),
			(SELECT COUNT(*) FROM odds)
		FROM events
	`

	var s models.StoreSummary
	err := r.db.QueryRow(ctx, query).Scan(
		&s.TotalEvents, &s.EventsWithOdds, &s.EventsWithoutScore, &s.EventsLast24h, &s.TotalOdds,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise store: %w", err)
	}

	return &s, nil
}
