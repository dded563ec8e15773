package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"oddscollector/ingestion/internal/normalize"
)

// FlexString decodes a JSON string, number or null into a string.
// The upstream API is inconsistent about quoting ids, prices and timestamps.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the trimmed value
func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// Int64 parses the value as an integer
func (f FlexString) Int64() (int64, bool) {
	v, err := strconv.ParseInt(f.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Float parses the value as a price. Placeholders such as "-" yield nil.
func (f FlexString) Float() *float64 {
	v, err := strconv.ParseFloat(f.String(), 64)
	if err != nil {
		return nil
	}
	return &v
}

// Pager is the pagination descriptor of a list response.
// Either TotalPages or Total/PerPage is populated depending on the endpoint.
type Pager struct {
	Page       FlexString `json:"page"`
	PerPage    FlexString `json:"per_page"`
	Total      FlexString `json:"total"`
	TotalPages FlexString `json:"total_pages"`
}

// HasNext reports whether a page after page exists
func (p *Pager) HasNext(page int) bool {
	if p == nil {
		return true
	}
	if totalPages, ok := p.TotalPages.Int64(); ok && totalPages > 0 {
		return int64(page) < totalPages
	}
	total, okTotal := p.Total.Int64()
	perPage, okPer := p.PerPage.Int64()
	if okTotal && okPer && perPage > 0 {
		return int64(page)*perPage < total
	}
	return true
}

// RawRef is an {id, name} pair embedded in event payloads
type RawRef struct {
	ID   FlexString `json:"id"`
	Name string     `json:"name"`
}

// RawEvent is one item of the ended-events or event-view results
type RawEvent struct {
	ID         FlexString `json:"id"`
	SportID    FlexString `json:"sport_id"`
	Time       FlexString `json:"time"`
	TimeStatus FlexString `json:"time_status"`
	League     RawRef     `json:"league"`
	Home       RawRef     `json:"home"`
	Away       RawRef     `json:"away"`
	SS         FlexString `json:"ss"`
}

// ToEvent converts the payload into an Event ready for upsert.
// HasOdds and LastOddsUpdate are left NULL so a re-sighting never
// clears previously recorded odds state.
func (r *RawEvent) ToEvent(defaultSportID int, loc *time.Location) (*Event, error) {
	id, ok := r.ID.Int64()
	if !ok || id <= 0 {
		return nil, fmt.Errorf("invalid event id %q", r.ID.String())
	}

	event := &Event{
		EventID: id,
		SportID: defaultSportID,
	}

	if sport, ok := r.SportID.Int64(); ok {
		event.SportID = int(sport)
	}
	if league, ok := r.League.ID.Int64(); ok {
		event.LeagueID.Int64, event.LeagueID.Valid = league, true
	}
	if name := strings.TrimSpace(r.League.Name); name != "" {
		event.LeagueName.String, event.LeagueName.Valid = name, true
	}
	if ts, ok := normalize.ToLocalInstant(r.Time.String(), loc); ok {
		event.EventTimestamp.Time, event.EventTimestamp.Valid = ts, true
	}

	if home, ok := r.Home.ID.Int64(); ok {
		event.HomeTeamID.Int64, event.HomeTeamID.Valid = home, true
	}
	if away, ok := r.Away.ID.Int64(); ok {
		event.AwayTeamID.Int64, event.AwayTeamID.Valid = away, true
	}

	var player string
	event.HomeTeamName, player, ok = normalize.SplitTeamAndPlayer(r.Home.Name)
	if ok {
		event.HomePlayerName.String, event.HomePlayerName.Valid = player, true
	}
	event.AwayTeamName, player, ok = normalize.SplitTeamAndPlayer(r.Away.Name)
	if ok {
		event.AwayPlayerName.String, event.AwayPlayerName.Valid = player, true
	}

	if score, ok := normalize.ParseScore(r.SS.String()); ok {
		event.FinalScore.String, event.FinalScore.Valid = score, true
	}

	return event, nil
}

// MarketQuote is one market entry inside odds.start of an odds summary
type MarketQuote struct {
	HomeOd   FlexString `json:"home_od"`
	DrawOd   FlexString `json:"draw_od"`
	AwayOd   FlexString `json:"away_od"`
	OverOd   FlexString `json:"over_od"`
	UnderOd  FlexString `json:"under_od"`
	Handicap FlexString `json:"handicap"`
	SS       FlexString `json:"ss"`
	AddTime  FlexString `json:"add_time"`
}

// BookmakerOdds is the per-bookmaker section of an odds summary
type BookmakerOdds struct {
	LastUpdate FlexString `json:"last_update"`
	Odds       struct {
		Start map[string]MarketQuote `json:"start"`
	} `json:"odds"`
}

// OddsSummary is the results object of the odds summary endpoint, keyed by bookmaker
type OddsSummary map[string]BookmakerOdds
