package ingest

import (
	"testing"

	"oddscollector/ingestion/internal/config"
	"oddscollector/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Allowlist(t *testing.T) {
	c, err := NewClassifier(config.ClassificationAllowlist, 1, []string{"22614", " 22821 ", ""})
	require.NoError(t, err)

	inList := rawEvent(1)
	assert.True(t, c.Accept(&inList))

	second := rawEvent(2)
	second.League.ID = "22821"
	assert.True(t, c.Accept(&second))

	other := rawEvent(3)
	other.League.ID = "99"
	assert.False(t, c.Accept(&other), "name heuristics are ignored in allowlist mode")

	wrongSport := rawEvent(4)
	wrongSport.SportID = "18"
	assert.False(t, c.Accept(&wrongSport))
}

func TestClassifier_EmptyAllowlistAcceptsAll(t *testing.T) {
	c, err := NewClassifier("", 1, nil)
	require.NoError(t, err)

	ev := rawEvent(1)
	ev.League = models.RawRef{ID: "5", Name: "Premier League"}
	assert.True(t, c.Accept(&ev))
}

func TestClassifier_EsoccerHeuristic(t *testing.T) {
	c, err := NewClassifier(config.ClassificationEsoccer, 1, []string{"22614"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		league models.RawRef
		home   string
		away   string
		want   bool
	}{
		{"allowlisted league", models.RawRef{ID: "22614", Name: "Anything"}, "A", "B", true},
		{"league keyword", models.RawRef{ID: "1", Name: "Esoccer GT Leagues"}, "A", "B", true},
		{"cyber keyword", models.RawRef{ID: "1", Name: "Cyber Live Arena"}, "A", "B", true},
		{"both players", models.RawRef{ID: "1", Name: "Friendly"}, "Roma (Boulevard)", "Lazio (Kravich)", true},
		{"one player only", models.RawRef{ID: "1", Name: "Friendly"}, "Roma (Boulevard)", "Lazio", false},
		{"age group is not a player", models.RawRef{ID: "1", Name: "Copa"}, "Santos (Sub-20)", "Flamengo (Sub-20)", false},
		{"plain football", models.RawRef{ID: "1", Name: "Serie A"}, "Roma", "Lazio", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := rawEvent(1)
			ev.League = tt.league
			ev.Home.Name = tt.home
			ev.Away.Name = tt.away
			assert.Equal(t, tt.want, c.Accept(&ev))
		})
	}
}

func TestNewClassifier_Errors(t *testing.T) {
	_, err := NewClassifier("fuzzy", 1, nil)
	assert.Error(t, err)

	_, err = NewClassifier(config.ClassificationAllowlist, 1, []string{"abc"})
	assert.Error(t, err)
}
