package ingest

import (
	"testing"
	"time"

	"oddscollector/ingestion/internal/models"
	"oddscollector/ingestion/internal/normalize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractOdds_AllMarkets(t *testing.T) {
	records, lastUpdate := ExtractOdds(7, bet365Summary(), models.DefaultBookmaker, time.UTC)
	require.Len(t, records, 3)
	require.NotNil(t, lastUpdate)
	assert.Equal(t, time.Unix(1705313000, 0).UTC(), *lastUpdate)

	h2h, ah, ou := records[0], records[1], records[2]

	assert.Equal(t, models.MarketHeadToHead, h2h.Market)
	assert.Equal(t, int64(7), h2h.EventID)
	assert.Equal(t, models.DefaultBookmaker, h2h.Bookmaker)
	require.NotNil(t, h2h.Data.Draw)
	assert.InDelta(t, 3.5, *h2h.Data.Draw, 1e-9)
	assert.True(t, h2h.OddsTimestamp.Valid)

	assert.Equal(t, models.MarketAsianHandicap, ah.Market)
	assert.Equal(t, "-0.5", ah.Data.Handicap)
	assert.Equal(t, "0.5", ah.Data.AwayLine)

	assert.Equal(t, models.MarketOverUnder, ou.Market)
	assert.Equal(t, "2.5", ou.Data.Line)
	require.NotNil(t, ou.Data.Over)
	assert.InDelta(t, 1.85, *ou.Data.Over, 1e-9)
}

func TestExtractOdds_CompletenessRules(t *testing.T) {
	bk := models.BookmakerOdds{}
	bk.Odds.Start = map[string]models.MarketQuote{
		"1_1": {HomeOd: "-", DrawOd: "3.1", AwayOd: "-"},
		"1_2": {HomeOd: "1.9", AwayOd: "-", Handicap: "0"},
		"1_3": {OverOd: "1.9", Handicap: "2.5"},
	}
	summary := models.OddsSummary{models.DefaultBookmaker: bk}

	records, lastUpdate := ExtractOdds(7, summary, models.DefaultBookmaker, time.UTC)
	require.Len(t, records, 1, "only head-to-head has enough prices")
	assert.Equal(t, models.MarketHeadToHead, records[0].Market)
	assert.Nil(t, records[0].Data.Home)
	assert.False(t, records[0].OddsTimestamp.Valid)
	assert.Nil(t, lastUpdate)
}

func TestExtractOdds_MissingBookmaker(t *testing.T) {
	records, lastUpdate := ExtractOdds(7, models.OddsSummary{"Other": {}}, models.DefaultBookmaker, time.UTC)
	assert.Empty(t, records)
	assert.Nil(t, lastUpdate)

	records, _ = ExtractOdds(7, nil, models.DefaultBookmaker, time.UTC)
	assert.Empty(t, records)
}

func TestExtractOdds_UnknownAwayLine(t *testing.T) {
	bk := models.BookmakerOdds{}
	bk.Odds.Start = map[string]models.MarketQuote{
		"1_2": {HomeOd: "1.9", AwayOd: "1.9", Handicap: "PK"},
	}
	records, _ := ExtractOdds(7, models.OddsSummary{models.DefaultBookmaker: bk}, models.DefaultBookmaker, time.UTC)
	require.Len(t, records, 1)
	assert.Equal(t, normalize.UnknownLine, records[0].Data.AwayLine)
}
