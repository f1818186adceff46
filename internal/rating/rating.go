// Package rating reduces a team's resolved match set to a bounded,
// deterministic Strength Index and per-team aggregate.
package rating

import (
	"math"
	"time"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// Strength Index normalization bounds. Clamping bounds the influence of
// any single blowout result so it cannot dominate a small sample's
// rating.
const (
	ppgCeiling = 3.0
	gdCeiling  = 5.0

	ppgWeight = 0.7
	gdWeight  = 0.3
)

// StrengthIndex computes the 0-100 rating from points-per-game and goal
// differential per game, rounded to one decimal as published.
func StrengthIndex(ppg, gdPerGame float64) float64 {
	ppgNorm := clamp(ppg, 0, ppgCeiling) / ppgCeiling * 100
	gdNorm := (clamp(gdPerGame, -gdCeiling, gdCeiling) + gdCeiling) / (2 * gdCeiling) * 100
	return math.Round((ppgWeight*ppgNorm+gdWeight*gdNorm)*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Aggregate recomputes a team's summary as a pure function of its match
// records. A team below minGames is still computed but flagged
// low-sample so default ranking views can exclude it. Zero games yields
// zero ppg and gd_per_game by definition.
func Aggregate(teamID string, matches []model.MatchRecord, minGames int, now time.Time) model.TeamAggregate {
	agg := model.TeamAggregate{
		TeamID:         teamID,
		LastComputedAt: now.UTC(),
	}
	for _, m := range matches {
		agg.GamesPlayed++
		agg.GoalsFor += m.GoalsFor
		agg.GoalsAgainst += m.GoalsAgainst
		switch m.Result {
		case model.ResultWin:
			agg.Wins++
		case model.ResultDraw:
			agg.Draws++
		case model.ResultLoss:
			agg.Losses++
		}
	}

	agg.Points = 3*agg.Wins + agg.Draws
	if agg.GamesPlayed > 0 {
		agg.PPG = float64(agg.Points) / float64(agg.GamesPlayed)
		agg.GDPerGame = float64(agg.GoalsFor-agg.GoalsAgainst) / float64(agg.GamesPlayed)
		agg.StrengthIndex = StrengthIndex(agg.PPG, agg.GDPerGame)
	}
	agg.LowSample = agg.GamesPlayed < minGames
	return agg
}
