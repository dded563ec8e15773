package models

import (
	"database/sql"
	"fmt"
	"time"
)

// DefaultBookmaker is the only odds source currently ingested
const DefaultBookmaker = "Bet365"

// Market is the closed set of pre-match markets that are persisted
type Market int

const (
	MarketHeadToHead Market = iota + 1
	MarketAsianHandicap
	MarketOverUnder
)

// Markets lists every supported market in extraction order
var Markets = []Market{MarketHeadToHead, MarketAsianHandicap, MarketOverUnder}

// String returns the odds_market column value
func (m Market) String() string {
	switch m {
	case MarketHeadToHead:
		return "prematch_1x2"
	case MarketAsianHandicap:
		return "prematch_asian_handicap"
	case MarketOverUnder:
		return "prematch_over_under"
	default:
		return fmt.Sprintf("market(%d)", int(m))
	}
}

// UpstreamKey returns the market id used in odds summary payloads
func (m Market) UpstreamKey() string {
	switch m {
	case MarketHeadToHead:
		return "1_1"
	case MarketAsianHandicap:
		return "1_2"
	case MarketOverUnder:
		return "1_3"
	default:
		return ""
	}
}

// ParseMarket maps an odds_market column value back to a Market
func ParseMarket(s string) (Market, error) {
	for _, m := range Markets {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown odds market %q", s)
}

// OddsRecord is one append-only snapshot of one market for one event
type OddsRecord struct {
	ID            int64        `db:"id"`
	EventID       int64        `db:"event_id"`
	Bookmaker     string       `db:"bookmaker"`
	Market        Market       `db:"odds_market"`
	OddsTimestamp sql.NullTime `db:"odds_timestamp"`
	Data          OddsData     `db:"odds_data"`
	CollectedAt   time.Time    `db:"collection_timestamp"`
}

// OddsData is the JSON payload stored in odds.odds_data.
// Which fields are set depends on the market.
type OddsData struct {
	Home     *float64 `json:"home,omitempty"`
	Draw     *float64 `json:"draw,omitempty"`
	Away     *float64 `json:"away,omitempty"`
	Handicap string   `json:"handicap,omitempty"`
	AwayLine string   `json:"away_line,omitempty"`

	Line  string   `json:"line,omitempty"`
	Over  *float64 `json:"over,omitempty"`
	Under *float64 `json:"under,omitempty"`

	// In-play score and quote time as reported upstream
	SS      string `json:"ss,omitempty"`
	AddTime string `json:"add_time,omitempty"`
}
