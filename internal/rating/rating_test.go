package rating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

func TestStrengthIndex(t *testing.T) {
	tests := []struct {
		name string
		ppg  float64
		gd   float64
		want float64
	}{
		{"mid-table twelve game season", 1.25, -11.0 / 12.0, 41.4},
		{"perfect single game 4-0", 3.0, 4.0, 97.0},
		{"all zero", 0, 0, 15.0},
		{"ceiling", 3.0, 5.0, 100.0},
		{"floor", 0, -5.0, 0.0},
		{"blowout margin is clamped", 3.0, 25.0, 100.0},
		{"ppg above ceiling is clamped", 9.9, 0, 85.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StrengthIndex(tt.ppg, tt.gd), 0.05)
		})
	}
}

func TestStrengthIndex_AlwaysBounded(t *testing.T) {
	for ppg := -2.0; ppg <= 6.0; ppg += 0.5 {
		for gd := -20.0; gd <= 20.0; gd += 2.5 {
			si := StrengthIndex(ppg, gd)
			assert.GreaterOrEqual(t, si, 0.0)
			assert.LessOrEqual(t, si, 100.0)
		}
	}
}

func match(result model.Result, gf, ga int) model.MatchRecord {
	return model.MatchRecord{
		Result:       result,
		GoalsFor:     gf,
		GoalsAgainst: ga,
	}
}

func TestAggregate_TwelveGameSeason(t *testing.T) {
	// 4W-3D-5L, goals 50-61: ppg 1.25, gd/gp -0.917, strength ~41.4.
	matches := []model.MatchRecord{
		match(model.ResultWin, 5, 1),
		match(model.ResultWin, 5, 1),
		match(model.ResultWin, 5, 1),
		match(model.ResultWin, 5, 1),
		match(model.ResultDraw, 3, 3),
		match(model.ResultDraw, 3, 3),
		match(model.ResultDraw, 3, 3),
		match(model.ResultLoss, 4, 10),
		match(model.ResultLoss, 4, 10),
		match(model.ResultLoss, 4, 10),
		match(model.ResultLoss, 4, 9),
		match(model.ResultLoss, 5, 9),
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg := Aggregate("team-1", matches, 3, now)

	assert.Equal(t, 12, agg.GamesPlayed)
	assert.Equal(t, 4, agg.Wins)
	assert.Equal(t, 3, agg.Draws)
	assert.Equal(t, 5, agg.Losses)
	assert.Equal(t, 50, agg.GoalsFor)
	assert.Equal(t, 61, agg.GoalsAgainst)
	assert.Equal(t, 15, agg.Points)
	assert.InDelta(t, 1.25, agg.PPG, 1e-9)
	assert.InDelta(t, -11.0/12.0, agg.GDPerGame, 1e-9)
	assert.InDelta(t, 41.4, agg.StrengthIndex, 0.05)
	assert.False(t, agg.LowSample)
	assert.Equal(t, now, agg.LastComputedAt)
}

func TestAggregate_SingleBlowoutIsLowSample(t *testing.T) {
	matches := []model.MatchRecord{match(model.ResultWin, 4, 0)}

	agg := Aggregate("team-1", matches, 3, time.Now())

	assert.Equal(t, 1, agg.GamesPlayed)
	assert.InDelta(t, 3.0, agg.PPG, 1e-9)
	assert.InDelta(t, 4.0, agg.GDPerGame, 1e-9)
	assert.InDelta(t, 97.0, agg.StrengthIndex, 1e-9)
	assert.True(t, agg.LowSample)
}

func TestAggregate_ZeroGames(t *testing.T) {
	agg := Aggregate("team-1", nil, 3, time.Now())

	assert.Zero(t, agg.GamesPlayed)
	assert.Zero(t, agg.PPG)
	assert.Zero(t, agg.GDPerGame)
	assert.Zero(t, agg.StrengthIndex)
	assert.True(t, agg.LowSample)
}

func TestAggregate_Deterministic(t *testing.T) {
	matches := []model.MatchRecord{
		match(model.ResultWin, 3, 1),
		match(model.ResultLoss, 0, 2),
		match(model.ResultDraw, 1, 1),
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := Aggregate("team-1", matches, 3, now)
	second := Aggregate("team-1", matches, 3, now)
	assert.Equal(t, first, second)
}
