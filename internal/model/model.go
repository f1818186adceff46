// Package model defines the domain types shared across the rating engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cohort is the competitive grouping a team plays in, expressed as a
// birth year ("2018", "2017", ...). CohortUnknown marks teams with no
// firing classification signal.
type Cohort string

// CohortUnknown is the zero-signal cohort.
const CohortUnknown Cohort = "unknown"

// Known reports whether the cohort carries a real classification.
func (c Cohort) Known() bool {
	return c != "" && c != CohortUnknown
}

// Tier is the trust level of a source record, used to arbitrate
// conflicting reports of the same match.
type Tier string

const (
	// TierHigh covers authoritative division/league standings exports and
	// tournament results with explicit final scores.
	TierHigh Tier = "high"
	// TierMedium covers matches inferred from an opponent's own published
	// schedule.
	TierMedium Tier = "medium"
	// TierLow covers one-sided head-to-head entries with no independent
	// corroboration.
	TierLow Tier = "low"
)

// Rank orders tiers for conflict arbitration; higher wins.
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// Result is the outcome of a match from the owning team's perspective.
type Result string

const (
	ResultWin  Result = "W"
	ResultDraw Result = "D"
	ResultLoss Result = "L"
)

// SourceRecord is one immutable raw row handed over by an ingestion
// collaborator. RawOpponentName may be empty when the source only knows
// one side of the fixture.
type SourceRecord struct {
	RawTeamName     string    `json:"raw_team_name"`
	RawOpponentName string    `json:"raw_opponent_name,omitempty"`
	Date            time.Time `json:"date"`
	GoalsFor        int       `json:"goals_for"`
	GoalsAgainst    int       `json:"goals_against"`
	Tier            Tier      `json:"tier"`
	Provenance      string    `json:"provenance"`
	CohortHint      Cohort    `json:"cohort_hint,omitempty"`
}

// ContentHash identifies the raw row itself (not the logical match), so
// re-ingesting the same file is a no-op at the store level.
func (r SourceRecord) ContentHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%s|%s",
		r.RawTeamName, r.RawOpponentName, r.Date.UTC().Format("2006-01-02"),
		r.GoalsFor, r.GoalsAgainst, r.Tier, r.Provenance)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalTeam is the single resolved identity standing for all name
// variants of one real team. Invariant: every alias maps to exactly one
// canonical id at any time.
type CanonicalTeam struct {
	ID               string    `json:"id"`
	CanonicalName    string    `json:"canonical_name"`
	Aliases          []string  `json:"aliases"`
	Cohort           Cohort    `json:"cohort"`
	CohortConfidence float64   `json:"cohort_confidence"`
	CreatedAt        time.Time `json:"created_at"`
}

// MatchRecord is a resolved match from one team's perspective.
// OpponentID is empty when the opponent side could not be resolved.
type MatchRecord struct {
	DedupeKey    string    `json:"dedupe_key"`
	TeamID       string    `json:"team_id"`
	OpponentID   string    `json:"opponent_id,omitempty"`
	Date         time.Time `json:"date"`
	GoalsFor     int       `json:"goals_for"`
	GoalsAgainst int       `json:"goals_against"`
	Result       Result    `json:"result"`
	Tier         Tier      `json:"tier"`
	Provenance   string    `json:"provenance"`
}

// DedupeKey collapses multiple source reports of the same logical match
// into one MatchRecord, regardless of which source reported it.
func DedupeKey(teamID, opponentID string, date time.Time, goalsFor, goalsAgainst int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d",
		teamID, opponentID, date.UTC().Format("2006-01-02"), goalsFor, goalsAgainst)
	return hex.EncodeToString(h.Sum(nil))
}

// Outcome classifies a scoreline from the owning team's perspective.
func Outcome(goalsFor, goalsAgainst int) Result {
	switch {
	case goalsFor > goalsAgainst:
		return ResultWin
	case goalsFor < goalsAgainst:
		return ResultLoss
	default:
		return ResultDraw
	}
}

// TeamAggregate is the fully recomputed per-team summary. It is always a
// pure function of the committed MatchRecord set, never hand-edited.
type TeamAggregate struct {
	TeamID         string    `json:"team_id"`
	GamesPlayed    int       `json:"games_played"`
	Wins           int       `json:"wins"`
	Draws          int       `json:"draws"`
	Losses         int       `json:"losses"`
	GoalsFor       int       `json:"goals_for"`
	GoalsAgainst   int       `json:"goals_against"`
	Points         int       `json:"points"`
	PPG            float64   `json:"ppg"`
	GDPerGame      float64   `json:"gd_per_game"`
	StrengthIndex  float64   `json:"strength_index"`
	LowSample      bool      `json:"low_sample"`
	LastComputedAt time.Time `json:"last_computed_at"`
}

// ReviewEvent records an ambiguous identity resolution for manual
// confirmation: the raw name and the canonical candidates that scored
// within the ambiguity margin of each other.
type ReviewEvent struct {
	ID         string            `json:"id"`
	RawName    string            `json:"raw_name"`
	Candidates []ReviewCandidate `json:"candidates"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ReviewCandidate is one competing canonical team with its similarity
// score against the ambiguous raw name.
type ReviewCandidate struct {
	TeamID        string  `json:"team_id"`
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"`
}

// Snapshot is the metadata of one committed aggregation pass. Readers
// only ever see data belonging to the latest committed snapshot.
type Snapshot struct {
	ID          string    `json:"id"`
	PassID      string    `json:"pass_id"`
	Teams       int       `json:"teams"`
	Matches     int       `json:"matches"`
	SkippedRows int       `json:"skipped_rows"`
	CommittedAt time.Time `json:"committed_at"`
}

// RankedTeam is one row of a ranking view.
type RankedTeam struct {
	Rank          int     `json:"rank"`
	TeamID        string  `json:"team_id"`
	CanonicalName string  `json:"canonical_name"`
	Cohort        Cohort  `json:"cohort"`
	GamesPlayed   int     `json:"games_played"`
	Wins          int     `json:"wins"`
	Draws         int     `json:"draws"`
	Losses        int     `json:"losses"`
	GoalsFor      int     `json:"goals_for"`
	GoalsAgainst  int     `json:"goals_against"`
	PPG           float64 `json:"ppg"`
	StrengthIndex float64 `json:"strength_index"`
	LowSample     bool    `json:"low_sample"`
}

// ComparisonStatus says which evidence a comparison is based on.
type ComparisonStatus string

const (
	// ComparisonHeadToHead means the two teams have direct match records.
	ComparisonHeadToHead ComparisonStatus = "head_to_head"
	// ComparisonCommonOpponents means no direct meetings, but both teams
	// have valid records against a shared set of opponents.
	ComparisonCommonOpponents ComparisonStatus = "common_opponents"
	// ComparisonInsufficientData means neither head-to-head matches nor
	// common opponents exist.
	ComparisonInsufficientData ComparisonStatus = "insufficient_data"
)

// CommonOpponent is a team both compared sides have played, with each
// side's average goal differential against it.
type CommonOpponent struct {
	TeamID        string  `json:"team_id"`
	CanonicalName string  `json:"canonical_name"`
	AvgGDTeamA    float64 `json:"avg_gd_team_a"`
	AvgGDTeamB    float64 `json:"avg_gd_team_b"`
}

// ComparisonResult is the outcome of comparing two teams.
type ComparisonResult struct {
	Status          ComparisonStatus `json:"status"`
	TeamA           string           `json:"team_a"`
	TeamB           string           `json:"team_b"`
	HeadToHead      []MatchRecord    `json:"head_to_head,omitempty"`
	CommonOpponents []CommonOpponent `json:"common_opponents,omitempty"`
	StrengthDelta   float64          `json:"strength_delta"`
}
