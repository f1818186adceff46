// Package resolver canonicalizes raw team name variants into stable
// entity ids. The policy is asymmetric on purpose: a duplicate entity is
// cheap to reconcile manually later, while an incorrect auto-merge
// corrupts the merged entity's entire match history irreversibly, so the
// resolver always prefers creating a new entity over risking a wrong
// merge.
package resolver

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/LivingRiskyCo/dsx-tracker/internal/config"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// ErrEmptyName is returned when a raw name normalizes to nothing.
var ErrEmptyName = eris.New("resolver: empty team name")

// Outcome tags how a raw name was resolved.
type Outcome string

const (
	// OutcomeMatched means the name was attached to an existing entity,
	// either by exact alias lookup or accepted fuzzy match.
	OutcomeMatched Outcome = "matched"
	// OutcomeCreated means no candidate scored above the acceptance
	// threshold and a new entity was created.
	OutcomeCreated Outcome = "created"
	// OutcomeAmbiguous means two or more candidates scored within the
	// ambiguity margin of each other; a new tentative entity was created
	// and a review event emitted instead of guessing.
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Resolution is the tagged result of a resolve call, so callers and
// tests can assert on the outcome directly instead of inferring it from
// side effects.
type Resolution struct {
	Outcome    Outcome
	TeamID     string
	Score      float64
	Candidates []model.ReviewCandidate
}

// Registry is the alias arena: canonical teams indexed by id plus a
// reverse map from normalized alias to id. It is an explicit handle
// passed into resolver calls, not process-wide state, so tests can
// instantiate isolated registries. It is not safe for concurrent
// writers; a single aggregation pass owns it exclusively.
type Registry struct {
	cfg        config.ResolverConfig
	extraNoise map[string]struct{}

	teams      map[string]*model.CanonicalTeam
	order      []string          // insertion order, drives first-seen tie-breaks
	aliasIndex map[string]string // normalized alias -> team id
	tokens     map[string][]map[string]struct{}

	reviews []model.ReviewEvent
	now     func() time.Time
}

// NewRegistry creates an empty registry with the given tunables.
func NewRegistry(cfg config.ResolverConfig) *Registry {
	extra := make(map[string]struct{}, len(cfg.ExtraNoiseWords))
	for _, w := range cfg.ExtraNoiseWords {
		extra[NormalizeName(w)] = struct{}{}
	}
	return &Registry{
		cfg:        cfg,
		extraNoise: extra,
		teams:      make(map[string]*model.CanonicalTeam),
		aliasIndex: make(map[string]string),
		tokens:     make(map[string][]map[string]struct{}),
		now:        time.Now,
	}
}

// Seed loads a previously committed registry so canonical ids stay
// stable across passes. Teams must arrive in created order.
func (r *Registry) Seed(teams []model.CanonicalTeam) error {
	for i := range teams {
		t := teams[i]
		if _, dup := r.teams[t.ID]; dup {
			return eris.Errorf("resolver: duplicate team id %s in seed", t.ID)
		}
		copied := t
		r.teams[t.ID] = &copied
		r.order = append(r.order, t.ID)
		for _, alias := range t.Aliases {
			norm := NormalizeName(alias)
			if norm == "" {
				continue
			}
			if owner, taken := r.aliasIndex[norm]; taken && owner != t.ID {
				return eris.Errorf("resolver: alias %q claimed by both %s and %s", alias, owner, t.ID)
			}
			r.aliasIndex[norm] = t.ID
			r.tokens[t.ID] = append(r.tokens[t.ID], tokenSet(norm, r.extraNoise))
		}
	}
	return nil
}

// Resolve canonicalizes a raw team name. hint, when known, prevents
// matching against entities already classified into a different cohort.
func (r *Registry) Resolve(rawName string, hint model.Cohort) (Resolution, error) {
	norm := NormalizeName(rawName)
	if norm == "" {
		return Resolution{}, ErrEmptyName
	}

	// Exact alias lookup short-circuits the fuzzy scan.
	if id, ok := r.aliasIndex[norm]; ok {
		return Resolution{Outcome: OutcomeMatched, TeamID: id, Score: 1.0}, nil
	}

	scored := r.scan(norm, hint)

	if len(scored) == 0 || scored[0].Score < r.cfg.AcceptThreshold {
		id := r.create(rawName, norm)
		return Resolution{Outcome: OutcomeCreated, TeamID: id}, nil
	}

	best := scored[0]
	if len(scored) > 1 && best.Score-scored[1].Score <= r.cfg.AmbiguityMargin {
		// Candidates too close to call: never guess. Create a tentative
		// entity and queue every candidate within the margin of the top
		// score for manual review.
		candidates := []model.ReviewCandidate{best}
		for _, c := range scored[1:] {
			if best.Score-c.Score > r.cfg.AmbiguityMargin {
				break
			}
			candidates = append(candidates, c)
		}
		runnerUp := scored[1]
		id := r.create(rawName, norm)
		r.reviews = append(r.reviews, model.ReviewEvent{
			ID:         uuid.New().String(),
			RawName:    rawName,
			Candidates: candidates,
			CreatedAt:  r.now().UTC(),
		})
		zap.L().Warn("resolver: ambiguous identity",
			zap.String("raw_name", rawName),
			zap.String("top", best.CanonicalName),
			zap.Float64("top_score", best.Score),
			zap.String("runner_up", runnerUp.CanonicalName),
			zap.Float64("runner_up_score", runnerUp.Score),
		)
		return Resolution{Outcome: OutcomeAmbiguous, TeamID: id, Score: best.Score, Candidates: candidates}, nil
	}

	r.addAlias(best.TeamID, rawName, norm)
	zap.L().Debug("resolver: fuzzy match accepted",
		zap.String("raw_name", rawName),
		zap.String("team_id", best.TeamID),
		zap.Float64("score", best.Score),
	)
	return Resolution{Outcome: OutcomeMatched, TeamID: best.TeamID, Score: best.Score}, nil
}

// scan scores every known entity against the normalized name and
// returns the candidates in deterministic descending-score order.
func (r *Registry) scan(norm string, hint model.Cohort) []model.ReviewCandidate {
	probe := tokenSet(norm, r.extraNoise)
	scored := make([]model.ReviewCandidate, 0, len(r.order))
	for _, id := range r.order {
		team := r.teams[id]
		if hint.Known() && team.Cohort.Known() && team.Cohort != hint {
			continue
		}
		top := 0.0
		for _, ts := range r.tokens[id] {
			if s := Similarity(probe, ts); s > top {
				top = s
			}
		}
		if top > 0 {
			scored = append(scored, model.ReviewCandidate{
				TeamID:        id,
				CanonicalName: team.CanonicalName,
				Score:         top,
			})
		}
	}
	// Stable sort keeps first-seen order among equal scores.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

func (r *Registry) create(rawName, norm string) string {
	id := uuid.New().String()
	r.teams[id] = &model.CanonicalTeam{
		ID:            id,
		CanonicalName: rawName,
		Aliases:       []string{rawName},
		Cohort:        model.CohortUnknown,
		CreatedAt:     r.now().UTC(),
	}
	r.order = append(r.order, id)
	r.aliasIndex[norm] = id
	r.tokens[id] = append(r.tokens[id], tokenSet(norm, r.extraNoise))
	return id
}

func (r *Registry) addAlias(teamID, rawName, norm string) {
	team := r.teams[teamID]
	team.Aliases = append(team.Aliases, rawName)
	r.aliasIndex[norm] = teamID
	r.tokens[teamID] = append(r.tokens[teamID], tokenSet(norm, r.extraNoise))
}

// Team returns the canonical team for an id.
func (r *Registry) Team(id string) (model.CanonicalTeam, bool) {
	t, ok := r.teams[id]
	if !ok {
		return model.CanonicalTeam{}, false
	}
	return *t, true
}

// SetCohort records a classification on a registered team.
func (r *Registry) SetCohort(id string, cohort model.Cohort, confidence float64) {
	if t, ok := r.teams[id]; ok {
		t.Cohort = cohort
		t.CohortConfidence = confidence
	}
}

// Teams returns all canonical teams in created order.
func (r *Registry) Teams() []model.CanonicalTeam {
	out := make([]model.CanonicalTeam, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.teams[id])
	}
	return out
}

// Reviews returns the ambiguity review events accumulated so far.
func (r *Registry) Reviews() []model.ReviewEvent {
	return r.reviews
}

// Len returns the number of canonical teams.
func (r *Registry) Len() int {
	return len(r.order)
}
