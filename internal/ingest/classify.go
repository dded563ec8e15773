package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"oddscollector/ingestion/internal/config"
	"oddscollector/ingestion/internal/models"
	"oddscollector/ingestion/internal/normalize"
)

// esoccerLeagueKeywords mark league names of simulated football
var esoccerLeagueKeywords = []string{"esoccer", "e-soccer", "efootball", "cyber"}

// Classifier decides whether an event belongs to the leagues of interest.
//
// The league-id allowlist is authoritative. In esoccer mode a name
// heuristic is a secondary signal: a league name carrying an esoccer
// keyword, or both sides carrying a "(Player)" suffix, also accepts the
// event.
type Classifier struct {
	mode    string
	sportID int
	leagues map[int64]struct{}
}

// NewClassifier builds a classifier; an empty allowlist accepts every league
func NewClassifier(mode string, sportID int, leagueIDs []string) (*Classifier, error) {
	switch mode {
	case "", config.ClassificationAllowlist:
		mode = config.ClassificationAllowlist
	case config.ClassificationEsoccer:
	default:
		return nil, fmt.Errorf("unknown classification mode %q", mode)
	}

	leagues := make(map[int64]struct{}, len(leagueIDs))
	for _, raw := range leagueIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid league id %q: %w", raw, err)
		}
		leagues[id] = struct{}{}
	}

	return &Classifier{mode: mode, sportID: sportID, leagues: leagues}, nil
}

// Accept reports whether raw should be ingested
func (c *Classifier) Accept(raw *models.RawEvent) bool {
	if sport, ok := raw.SportID.Int64(); ok && c.sportID > 0 && int(sport) != c.sportID {
		return false
	}

	if c.inAllowlist(raw) {
		return true
	}

	switch c.mode {
	case config.ClassificationEsoccer:
		return looksLikeEsoccer(raw)
	default:
		return len(c.leagues) == 0
	}
}

func (c *Classifier) inAllowlist(raw *models.RawEvent) bool {
	if len(c.leagues) == 0 {
		return false
	}
	id, ok := raw.League.ID.Int64()
	if !ok {
		return false
	}
	_, found := c.leagues[id]
	return found
}

func looksLikeEsoccer(raw *models.RawEvent) bool {
	league := strings.ToLower(raw.League.Name)
	for _, kw := range esoccerLeagueKeywords {
		if strings.Contains(league, kw) {
			return true
		}
	}

	_, _, homePlayer := normalize.SplitTeamAndPlayer(raw.Home.Name)
	_, _, awayPlayer := normalize.SplitTeamAndPlayer(raw.Away.Name)
	return homePlayer && awayPlayer
}
