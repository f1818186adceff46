// Package rank serves sorted rankings and head-to-head/common-opponent
// comparisons from the last committed aggregate snapshot. All reads are
// snapshot-bound, so concurrent queries never observe a partially
// updated aggregate set.
package rank

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/resolver"
	"github.com/LivingRiskyCo/dsx-tracker/internal/store"
)

// ErrNoSnapshot is returned when no pass has ever committed.
var ErrNoSnapshot = eris.New("rank: no committed snapshot")

// ErrUnknownTeam is returned when a comparison names a team the
// snapshot does not contain.
var ErrUnknownTeam = eris.New("rank: unknown team")

// Service answers read-only ranking and comparison queries.
type Service struct {
	store store.Store
}

// NewService creates a Service over the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// RankingView is one ranking table plus the snapshot it was read from,
// so consumers can show "data as of" the last successful pass.
type RankingView struct {
	SnapshotID string             `json:"snapshot_id"`
	AsOf       time.Time          `json:"as_of"`
	Cohort     model.Cohort       `json:"cohort,omitempty"`
	MinGames   int                `json:"min_games"`
	Rows       []model.RankedTeam `json:"rows"`
}

// Rankings returns teams of the given cohort with at least minGames
// played, sorted by (ppg desc, strength_index desc), rank numbers 1..N
// with ties broken by first-seen order. An empty cohort means all
// cohorts.
func (s *Service) Rankings(ctx context.Context, cohort model.Cohort, minGames int) (*RankingView, error) {
	snap, teams, aggs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	teamByID := make(map[string]model.CanonicalTeam, len(teams))
	seq := make(map[string]int, len(teams))
	for i, t := range teams {
		teamByID[t.ID] = t
		seq[t.ID] = i
	}

	rows := make([]model.RankedTeam, 0, len(aggs))
	for _, a := range aggs {
		team, ok := teamByID[a.TeamID]
		if !ok {
			continue
		}
		if cohort.Known() && team.Cohort != cohort {
			continue
		}
		if a.GamesPlayed < minGames {
			continue
		}
		rows = append(rows, model.RankedTeam{
			TeamID:        a.TeamID,
			CanonicalName: team.CanonicalName,
			Cohort:        team.Cohort,
			GamesPlayed:   a.GamesPlayed,
			Wins:          a.Wins,
			Draws:         a.Draws,
			Losses:        a.Losses,
			GoalsFor:      a.GoalsFor,
			GoalsAgainst:  a.GoalsAgainst,
			PPG:           a.PPG,
			StrengthIndex: a.StrengthIndex,
			LowSample:     a.LowSample,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PPG != rows[j].PPG {
			return rows[i].PPG > rows[j].PPG
		}
		if rows[i].StrengthIndex != rows[j].StrengthIndex {
			return rows[i].StrengthIndex > rows[j].StrengthIndex
		}
		return seq[rows[i].TeamID] < seq[rows[j].TeamID]
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}

	return &RankingView{
		SnapshotID: snap.ID,
		AsOf:       snap.CommittedAt,
		Cohort:     cohort,
		MinGames:   minGames,
		Rows:       rows,
	}, nil
}

// ComparisonView wraps a comparison with its snapshot provenance.
type ComparisonView struct {
	SnapshotID string                 `json:"snapshot_id"`
	AsOf       time.Time              `json:"as_of"`
	Result     model.ComparisonResult `json:"result"`
}

// Compare builds a head-to-head or common-opponent comparison between
// two teams, named by canonical id, canonical name, or any known alias.
// When neither direct matches nor common opponents exist the result
// carries an explicit insufficient-data status.
func (s *Service) Compare(ctx context.Context, queryA, queryB string) (*ComparisonView, error) {
	snap, teams, aggs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	teamA, err := findTeam(teams, queryA)
	if err != nil {
		return nil, err
	}
	teamB, err := findTeam(teams, queryB)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.ListMatches(ctx, snap.ID)
	if err != nil {
		return nil, err
	}

	result := model.ComparisonResult{
		Status: model.ComparisonInsufficientData,
		TeamA:  teamA.ID,
		TeamB:  teamB.ID,
	}

	for _, m := range matches {
		if (m.TeamID == teamA.ID && m.OpponentID == teamB.ID) ||
			(m.TeamID == teamB.ID && m.OpponentID == teamA.ID) {
			result.HeadToHead = append(result.HeadToHead, m)
		}
	}

	common := commonOpponents(matches, teamA.ID, teamB.ID, teams)
	result.CommonOpponents = common

	switch {
	case len(result.HeadToHead) > 0:
		result.Status = model.ComparisonHeadToHead
	case len(common) > 0:
		result.Status = model.ComparisonCommonOpponents
	default:
		return &ComparisonView{SnapshotID: snap.ID, AsOf: snap.CommittedAt, Result: result}, nil
	}

	var siA, siB float64
	for _, a := range aggs {
		switch a.TeamID {
		case teamA.ID:
			siA = a.StrengthIndex
		case teamB.ID:
			siB = a.StrengthIndex
		}
	}
	result.StrengthDelta = siA - siB

	return &ComparisonView{SnapshotID: snap.ID, AsOf: snap.CommittedAt, Result: result}, nil
}

// ReviewQueue returns the ambiguous-identity events of the latest
// snapshot for manual confirmation.
func (s *Service) ReviewQueue(ctx context.Context) (*model.Snapshot, []model.ReviewEvent, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	reviews, err := s.store.ListReviews(ctx, snap.ID)
	if err != nil {
		return nil, nil, err
	}
	return snap, reviews, nil
}

// Teams returns the canonical registry of the latest snapshot.
func (s *Service) Teams(ctx context.Context) (*model.Snapshot, []model.CanonicalTeam, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	teams, err := s.store.ListTeams(ctx, snap.ID)
	if err != nil {
		return nil, nil, err
	}
	return snap, teams, nil
}

// TeamMatches returns a team's resolved match log from the latest
// snapshot.
func (s *Service) TeamMatches(ctx context.Context, query string) (*model.Snapshot, model.CanonicalTeam, []model.MatchRecord, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, model.CanonicalTeam{}, nil, err
	}
	teams, err := s.store.ListTeams(ctx, snap.ID)
	if err != nil {
		return nil, model.CanonicalTeam{}, nil, err
	}
	team, err := findTeam(teams, query)
	if err != nil {
		return nil, model.CanonicalTeam{}, nil, err
	}
	matches, err := s.store.ListMatches(ctx, snap.ID)
	if err != nil {
		return nil, model.CanonicalTeam{}, nil, err
	}
	var own []model.MatchRecord
	for _, m := range matches {
		if m.TeamID == team.ID {
			own = append(own, m)
		}
	}
	return snap, team, own, nil
}

func (s *Service) snapshot(ctx context.Context) (*model.Snapshot, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

func (s *Service) load(ctx context.Context) (*model.Snapshot, []model.CanonicalTeam, []model.TeamAggregate, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	teams, err := s.store.ListTeams(ctx, snap.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	aggs, err := s.store.ListAggregates(ctx, snap.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return snap, teams, aggs, nil
}

// findTeam locates a team by id, canonical name, or registered alias.
func findTeam(teams []model.CanonicalTeam, query string) (model.CanonicalTeam, error) {
	norm := resolver.NormalizeName(query)
	for _, t := range teams {
		if t.ID == query || resolver.NormalizeName(t.CanonicalName) == norm {
			return t, nil
		}
		for _, alias := range t.Aliases {
			if resolver.NormalizeName(alias) == norm {
				return t, nil
			}
		}
	}
	return model.CanonicalTeam{}, eris.Wrapf(ErrUnknownTeam, "%q", query)
}

// commonOpponents finds teams both sides have valid match records
// against, with each side's average goal differential against them, the
// indirect-strength signal used when no head-to-head exists.
func commonOpponents(matches []model.MatchRecord, teamA, teamB string, teams []model.CanonicalTeam) []model.CommonOpponent {
	type gd struct {
		total int
		games int
	}
	gdA := make(map[string]*gd)
	gdB := make(map[string]*gd)
	for _, m := range matches {
		if m.OpponentID == "" {
			continue
		}
		var byOpp map[string]*gd
		switch m.TeamID {
		case teamA:
			byOpp = gdA
		case teamB:
			byOpp = gdB
		default:
			continue
		}
		if byOpp[m.OpponentID] == nil {
			byOpp[m.OpponentID] = &gd{}
		}
		byOpp[m.OpponentID].total += m.GoalsFor - m.GoalsAgainst
		byOpp[m.OpponentID].games++
	}

	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.CanonicalName
	}

	var shared []string
	for opp := range gdA {
		if opp == teamA || opp == teamB {
			continue
		}
		if _, ok := gdB[opp]; ok {
			shared = append(shared, opp)
		}
	}
	sort.Strings(shared)

	out := make([]model.CommonOpponent, 0, len(shared))
	for _, opp := range shared {
		a, b := gdA[opp], gdB[opp]
		out = append(out, model.CommonOpponent{
			TeamID:        opp,
			CanonicalName: names[opp],
			AvgGDTeamA:    float64(a.total) / float64(a.games),
			AvgGDTeamB:    float64(b.total) / float64(b.games),
		})
	}
	return out
}
