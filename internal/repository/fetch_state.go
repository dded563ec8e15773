package repository

import (
	"context"
	"fmt"
	"strings"

	"oddscollector/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// FetchStateRepository handles the durable fetch cursors
type FetchStateRepository struct {
	db DBTX
}

// Get returns the cursor for fetchType, creating an idle one on first use
func (r *FetchStateRepository) Get(ctx context.Context, fetchType string) (*models.FetchState, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO fetch_state (fetch_type, last_processed_page, status)
		VALUES ($1, 0, $2)
		ON CONFLICT (fetch_type) DO NOTHING
	`, fetchType, models.StatusIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch state %s: %w", fetchType, err)
	}
	if tag.RowsAffected() > 0 {
		log.Info().Str("fetch_type", fetchType).Msg("Created initial fetch state")
	}

	var s models.FetchState
	err = r.db.QueryRow(ctx, `
		SELECT fetch_type, last_processed_page, last_processed_timestamp, status, updated_at
		FROM fetch_state
		WHERE fetch_type = $1
	`, fetchType).Scan(&s.FetchType, &s.LastProcessedPage, &s.LastProcessedTimestamp, &s.Status, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch state %s: %w", fetchType, err)
	}

	return &s, nil
}

// Update applies the non-nil fields of upd; updated_at always moves
func (r *FetchStateRepository) Update(ctx context.Context, fetchType string, upd models.FetchStateUpdate) error {
	sets := []string{}
	args := []any{fetchType}

	if upd.Page != nil {
		args = append(args, *upd.Page)
		sets = append(sets, fmt.Sprintf("last_processed_page = $%d", len(args)))
	}
	if upd.Timestamp != nil {
		args = append(args, *upd.Timestamp)
		sets = append(sets, fmt.Sprintf("last_processed_timestamp = $%d", len(args)))
	}
	if upd.Status != nil {
		args = append(args, string(*upd.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE fetch_state SET %s WHERE fetch_type = $1", strings.Join(sets, ", "))
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update fetch state %s: %w", fetchType, err)
	}

	return nil
}

// SetStatus is a shorthand for updating only the status (and optionally the page)
func (r *FetchStateRepository) SetStatus(ctx context.Context, fetchType string, status models.FetchStatus, page *int) error {
	return r.Update(ctx, fetchType, models.FetchStateUpdate{Page: page, Status: &status})
}
