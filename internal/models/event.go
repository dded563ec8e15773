package models

import (
	"database/sql"
	"time"
)

// Event represents one completed fixture from the ended-events feed
type Event struct {
	EventID        int64          `db:"event_id"`
	SportID        int            `db:"sport_id"`
	LeagueID       sql.NullInt64  `db:"league_id"`
	LeagueName     sql.NullString `db:"league_name"`
	EventTimestamp sql.NullTime   `db:"event_timestamp"`

	HomeTeamID     sql.NullInt64  `db:"home_team_id"`
	HomeTeamName   string         `db:"home_team_name"`
	HomePlayerName sql.NullString `db:"home_player_name"`
	AwayTeamID     sql.NullInt64  `db:"away_team_id"`
	AwayTeamName   string         `db:"away_team_name"`
	AwayPlayerName sql.NullString `db:"away_player_name"`

	// Merge fields: a NULL on re-ingestion keeps the stored value
	FinalScore     sql.NullString `db:"final_score"`
	HasOdds        sql.NullBool   `db:"has_odds"`
	LastOddsUpdate sql.NullTime   `db:"last_odds_update"`

	InsertedAt time.Time `db:"inserted_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// PendingScore is an event whose final score is still unknown
type PendingScore struct {
	EventID        int64        `db:"event_id"`
	EventTimestamp sql.NullTime `db:"event_timestamp"`
}

// StoreSummary holds row counts reported after an ingestion pass
type StoreSummary struct {
	TotalEvents        int64
	EventsWithOdds     int64
	EventsWithoutScore int64
	EventsLast24h      int64
	TotalOdds          int64
}
