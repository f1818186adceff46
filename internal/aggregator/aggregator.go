// Package aggregator resolves both sides of incoming source records,
// deduplicates logical matches, and arbitrates conflicting sources by
// trust tier.
package aggregator

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/resolver"
)

// ErrMalformedRecord marks a row-level validation failure. The row is
// skipped and counted; the pass continues over the remaining rows.
var ErrMalformedRecord = eris.New("aggregator: malformed source record")

// Aggregator accumulates resolved match records for one aggregation
// pass. Not safe for concurrent use; a pass owns it exclusively.
type Aggregator struct {
	registry *resolver.Registry

	matches map[string]model.MatchRecord
	order   []string // first-seen dedupe keys, keeps output deterministic

	skipped  int
	replaced int
}

// New creates an aggregator resolving names through the given registry.
func New(registry *resolver.Registry) *Aggregator {
	return &Aggregator{
		registry: registry,
		matches:  make(map[string]model.MatchRecord),
	}
}

// Ingest validates and resolves one source record. Repeated ingestion
// of the same logical row is a no-op: equal-tier collisions on the
// dedupe key preserve the first-seen record, and a higher-tier incoming
// record always replaces the stored one.
func (a *Aggregator) Ingest(rec model.SourceRecord) error {
	if err := validate(rec); err != nil {
		a.skipped++
		return err
	}

	teamRes, err := a.registry.Resolve(rec.RawTeamName, rec.CohortHint)
	if err != nil {
		a.skipped++
		return eris.Wrap(ErrMalformedRecord, err.Error())
	}

	opponentID := ""
	if rec.RawOpponentName != "" {
		oppRes, err := a.registry.Resolve(rec.RawOpponentName, rec.CohortHint)
		if err != nil {
			a.skipped++
			return eris.Wrap(ErrMalformedRecord, err.Error())
		}
		opponentID = oppRes.TeamID
	}

	if opponentID != "" && opponentID == teamRes.TeamID {
		// Both names resolved to the same entity; storing it would break
		// the team != opponent invariant.
		a.skipped++
		zap.L().Warn("aggregator: record resolves to self-match",
			zap.String("raw_team", rec.RawTeamName),
			zap.String("raw_opponent", rec.RawOpponentName),
		)
		return eris.Wrapf(ErrMalformedRecord, "team and opponent resolve to %s", teamRes.TeamID)
	}

	match := model.MatchRecord{
		DedupeKey:    model.DedupeKey(teamRes.TeamID, opponentID, rec.Date, rec.GoalsFor, rec.GoalsAgainst),
		TeamID:       teamRes.TeamID,
		OpponentID:   opponentID,
		Date:         rec.Date.UTC(),
		GoalsFor:     rec.GoalsFor,
		GoalsAgainst: rec.GoalsAgainst,
		Result:       model.Outcome(rec.GoalsFor, rec.GoalsAgainst),
		Tier:         rec.Tier,
		Provenance:   rec.Provenance,
	}

	stored, exists := a.matches[match.DedupeKey]
	switch {
	case !exists:
		a.matches[match.DedupeKey] = match
		a.order = append(a.order, match.DedupeKey)
	case match.Tier.Rank() > stored.Tier.Rank():
		// Higher-trust source wins the collision, data and provenance.
		a.matches[match.DedupeKey] = match
		a.replaced++
		zap.L().Debug("aggregator: higher-tier record replaced stored match",
			zap.String("dedupe_key", match.DedupeKey),
			zap.String("old_tier", string(stored.Tier)),
			zap.String("new_tier", string(match.Tier)),
		)
	default:
		// Equal or lower tier: keep the first-seen record. This is what
		// makes re-ingestion idempotent.
	}
	return nil
}

func validate(rec model.SourceRecord) error {
	switch {
	case rec.RawTeamName == "":
		return eris.Wrap(ErrMalformedRecord, "missing raw_team_name")
	case rec.Date.IsZero():
		return eris.Wrap(ErrMalformedRecord, "missing date")
	case rec.GoalsFor < 0 || rec.GoalsAgainst < 0:
		return eris.Wrapf(ErrMalformedRecord, "negative score %d-%d", rec.GoalsFor, rec.GoalsAgainst)
	case !rec.Tier.Valid():
		return eris.Wrapf(ErrMalformedRecord, "unknown tier %q", rec.Tier)
	}
	return nil
}

// Matches returns the deduplicated match records in first-seen order.
func (a *Aggregator) Matches() []model.MatchRecord {
	out := make([]model.MatchRecord, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, a.matches[key])
	}
	return out
}

// ByTeam groups the match records by owning team id.
func (a *Aggregator) ByTeam() map[string][]model.MatchRecord {
	grouped := make(map[string][]model.MatchRecord)
	for _, key := range a.order {
		m := a.matches[key]
		grouped[m.TeamID] = append(grouped[m.TeamID], m)
	}
	return grouped
}

// Skipped returns the count of malformed rows dropped so far.
func (a *Aggregator) Skipped() int { return a.skipped }

// Replaced returns the count of tier-arbitration replacements.
func (a *Aggregator) Replaced() int { return a.replaced }
