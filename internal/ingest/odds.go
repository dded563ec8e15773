package ingest

import (
	"database/sql"
	"time"

	"oddscollector/ingestion/internal/models"
	"oddscollector/ingestion/internal/normalize"
)

// ExtractOdds builds the pre-match market records of one bookmaker.
// Head-to-head needs at least one price; asian handicap needs both sides;
// over/under needs both over and under. lastUpdate is the bookmaker's
// reported update time, if any.
func ExtractOdds(eventID int64, summary models.OddsSummary, bookmaker string, loc *time.Location) (records []models.OddsRecord, lastUpdate *time.Time) {
	bk, ok := summary[bookmaker]
	if !ok {
		return nil, nil
	}

	if ts, ok := normalize.ToLocalInstant(bk.LastUpdate.String(), loc); ok {
		lastUpdate = &ts
	}

	for _, market := range models.Markets {
		quote, ok := bk.Odds.Start[market.UpstreamKey()]
		if !ok {
			continue
		}

		data, ok := marketData(market, quote)
		if !ok {
			continue
		}

		rec := models.OddsRecord{
			EventID:   eventID,
			Bookmaker: bookmaker,
			Market:    market,
			Data:      data,
		}
		if ts, ok := normalize.ToLocalInstant(quote.AddTime.String(), loc); ok {
			rec.OddsTimestamp = sql.NullTime{Time: ts, Valid: true}
		}
		records = append(records, rec)
	}

	return records, lastUpdate
}

func marketData(market models.Market, q models.MarketQuote) (models.OddsData, bool) {
	data := models.OddsData{
		SS:      q.SS.String(),
		AddTime: q.AddTime.String(),
	}

	switch market {
	case models.MarketHeadToHead:
		data.Home, data.Draw, data.Away = q.HomeOd.Float(), q.DrawOd.Float(), q.AwayOd.Float()
		return data, data.Home != nil || data.Draw != nil || data.Away != nil

	case models.MarketAsianHandicap:
		data.Home, data.Away = q.HomeOd.Float(), q.AwayOd.Float()
		if line := q.Handicap.String(); line != "" {
			data.Handicap = line
			data.AwayLine = normalize.InvertHandicapLine(line)
		}
		return data, data.Home != nil && data.Away != nil

	case models.MarketOverUnder:
		data.Over, data.Under = q.OverOd.Float(), q.UnderOd.Float()
		data.Line = q.Handicap.String()
		return data, data.Over != nil && data.Under != nil
	}

	return data, false
}
