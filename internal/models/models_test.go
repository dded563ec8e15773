package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString_Unmarshal(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
		D FlexString `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a":"12","b":34,"c":null,"d":1.95}`), &v)
	require.NoError(t, err)

	assert.Equal(t, "12", v.A.String())
	assert.Equal(t, "34", v.B.String())
	assert.Equal(t, "", v.C.String())
	require.NotNil(t, v.D.Float())
	assert.InDelta(t, 1.95, *v.D.Float(), 1e-9)

	id, ok := v.B.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(34), id)

	assert.Nil(t, FlexString("-").Float())

	err = json.Unmarshal([]byte(`{"a":{"x":1}}`), &v)
	assert.Error(t, err)
}

func TestPager_HasNext(t *testing.T) {
	tests := []struct {
		name  string
		pager *Pager
		page  int
		want  bool
	}{
		{"nil pager continues", nil, 5, true},
		{"total pages more", &Pager{TotalPages: "3"}, 2, true},
		{"total pages last", &Pager{TotalPages: "3"}, 3, false},
		{"total per page more", &Pager{Total: "120", PerPage: "50"}, 2, true},
		{"total per page last", &Pager{Total: "100", PerPage: "50"}, 2, false},
		{"zero per page continues", &Pager{Total: "100", PerPage: "0"}, 9, true},
		{"total pages wins", &Pager{TotalPages: "1", Total: "500", PerPage: "50"}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pager.HasNext(tt.page))
		})
	}
}

func TestRawEvent_ToEvent(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	payload := `{
		"id": "9876543",
		"sport_id": "1",
		"time": "1700000000",
		"league": {"id": "22614", "name": "Esoccer Battle - 8 mins play"},
		"home": {"id": 11, "name": "Real Madrid (John Smith)"},
		"away": {"id": "12", "name": "Team (Sub-20)"},
		"ss": "2-1"
	}`
	var raw RawEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))

	event, err := raw.ToEvent(1, loc)
	require.NoError(t, err)

	assert.Equal(t, int64(9876543), event.EventID)
	assert.Equal(t, 1, event.SportID)
	assert.Equal(t, int64(22614), event.LeagueID.Int64)
	assert.Equal(t, "Esoccer Battle - 8 mins play", event.LeagueName.String)
	assert.True(t, event.EventTimestamp.Valid)
	assert.Equal(t, int64(1700000000), event.EventTimestamp.Time.Unix())
	assert.Equal(t, "Real Madrid", event.HomeTeamName)
	assert.Equal(t, "John Smith", event.HomePlayerName.String)
	assert.Equal(t, "Team (Sub-20)", event.AwayTeamName)
	assert.False(t, event.AwayPlayerName.Valid)
	assert.Equal(t, "2-1", event.FinalScore.String)
	assert.False(t, event.HasOdds.Valid, "has_odds must stay unknown on ingestion")
	assert.False(t, event.LastOddsUpdate.Valid)
}

func TestRawEvent_ToEvent_Invalid(t *testing.T) {
	raw := RawEvent{ID: "abc"}
	_, err := raw.ToEvent(1, time.UTC)
	assert.Error(t, err)

	raw = RawEvent{ID: "5", SS: "ongoing", Time: "nope"}
	event, err := raw.ToEvent(7, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 7, event.SportID)
	assert.False(t, event.FinalScore.Valid)
	assert.False(t, event.EventTimestamp.Valid)
	assert.False(t, event.LeagueID.Valid)
}

func TestMarket(t *testing.T) {
	for _, m := range Markets {
		parsed, err := ParseMarket(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	assert.Equal(t, "1_2", MarketAsianHandicap.UpstreamKey())

	_, err := ParseMarket("live_corners")
	assert.Error(t, err)
}

func TestFetchStatus_Resumable(t *testing.T) {
	assert.True(t, StatusPaused.Resumable())
	assert.True(t, StatusPausedMaxPages.Resumable())
	assert.False(t, StatusCompleted.Resumable())
	assert.False(t, StatusErrorSkippedPage.Resumable())
}
