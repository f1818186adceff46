package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LivingRiskyCo/dsx-tracker/internal/config"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(config.ResolverConfig{
		AcceptThreshold: 0.78,
		AmbiguityMargin: 0.06,
	})
}

func TestResolve_CreatesOnFirstUnmatchedName(t *testing.T) {
	reg := newTestRegistry(t)

	res, err := reg.Resolve("Dublin DSX 2018 Orange", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.NotEmpty(t, res.TeamID)

	team, ok := reg.Team(res.TeamID)
	require.True(t, ok)
	assert.Equal(t, "Dublin DSX 2018 Orange", team.CanonicalName)
	assert.Equal(t, []string{"Dublin DSX 2018 Orange"}, team.Aliases)
	assert.Equal(t, model.CohortUnknown, team.Cohort)
}

func TestResolve_ExactAliasShortCircuits(t *testing.T) {
	reg := newTestRegistry(t)

	first, err := reg.Resolve("Dublin DSX 2018 Orange", "")
	require.NoError(t, err)

	// Same name with different casing and spacing hits the alias index.
	again, err := reg.Resolve("  DUBLIN dsx 2018  Orange ", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, again.Outcome)
	assert.Equal(t, first.TeamID, again.TeamID)
	assert.Equal(t, 1.0, again.Score)
	assert.Equal(t, 1, reg.Len())
}

func TestResolve_FuzzyMatchRegistersAlias(t *testing.T) {
	reg := newTestRegistry(t)

	first, err := reg.Resolve("Worthington United 94 2018 Boys White", "")
	require.NoError(t, err)

	res, err := reg.Resolve("Worthington United 2018 White", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, first.TeamID, res.TeamID)
	assert.Greater(t, res.Score, 0.78)
	assert.Equal(t, 1, reg.Len())

	team, _ := reg.Team(first.TeamID)
	assert.Contains(t, team.Aliases, "Worthington United 2018 White")

	// The new spelling now resolves exactly.
	exact, err := reg.Resolve("Worthington United 2018 White", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, exact.Score)
}

func TestResolve_LowScoreCreatesNewEntity(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Resolve("Worthington United 94 2018 Boys White", "")
	require.NoError(t, err)

	res, err := reg.Resolve("Blast FC 2018 Juniors", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 2, reg.Len())
	assert.Empty(t, reg.Reviews())
}

func TestResolve_AmbiguityCreatesEntityAndReviewEvent(t *testing.T) {
	reg := newTestRegistry(t)

	a, err := reg.Resolve("Alpha Strikers 2018 Red", "")
	require.NoError(t, err)
	b, err := reg.Resolve("Alpha Strikers 2018 Blue", "")
	require.NoError(t, err)

	// Scores identically against both squads: must not guess.
	res, err := reg.Resolve("Alpha Strikers 2018", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
	assert.NotEqual(t, a.TeamID, res.TeamID)
	assert.NotEqual(t, b.TeamID, res.TeamID)
	assert.Equal(t, 3, reg.Len())

	reviews := reg.Reviews()
	require.Len(t, reviews, 1)
	assert.Equal(t, "Alpha Strikers 2018", reviews[0].RawName)
	require.Len(t, reviews[0].Candidates, 2)
	ids := []string{reviews[0].Candidates[0].TeamID, reviews[0].Candidates[1].TeamID}
	assert.ElementsMatch(t, []string{a.TeamID, b.TeamID}, ids)
	for _, c := range reviews[0].Candidates {
		assert.Greater(t, c.Score, 0.78)
	}
}

func TestResolve_CohortHintFiltersCandidates(t *testing.T) {
	reg := newTestRegistry(t)

	a, err := reg.Resolve("Alpha Strikers Red", "")
	require.NoError(t, err)
	b, err := reg.Resolve("Alpha Strikers Blue", "")
	require.NoError(t, err)
	reg.SetCohort(a.TeamID, "2018", 0.9)
	reg.SetCohort(b.TeamID, "2017", 0.9)

	// Without the hint this probe would be ambiguous between the squads;
	// the hint rules out the 2017 one.
	res, err := reg.Resolve("Alpha Strikers", "2018")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, a.TeamID, res.TeamID)
}

func TestResolve_EmptyName(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Resolve("   ", "")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRegistry_AliasExclusivity(t *testing.T) {
	reg := newTestRegistry(t)

	names := []string{
		"Worthington United 94 2018 Boys White",
		"Worthington United 2018 White",
		"Club Ohio West 18B Academy II",
		"Blast FC 2018 Juniors",
		"Blast FC Juniors 2018",
	}
	for _, n := range names {
		_, err := reg.Resolve(n, "")
		require.NoError(t, err)
	}

	// No normalized alias may belong to two canonical ids.
	seen := make(map[string]string)
	for _, team := range reg.Teams() {
		for _, alias := range team.Aliases {
			norm := NormalizeName(alias)
			if owner, ok := seen[norm]; ok {
				assert.Equal(t, owner, team.ID, "alias %q owned by two teams", alias)
			}
			seen[norm] = team.ID
		}
	}
}

func TestRegistry_SeedKeepsIDsStable(t *testing.T) {
	reg := newTestRegistry(t)
	res, err := reg.Resolve("Dublin DSX 2018 Orange", "")
	require.NoError(t, err)
	teams := reg.Teams()

	fresh := newTestRegistry(t)
	require.NoError(t, fresh.Seed(teams))

	again, err := fresh.Resolve("Dublin DSX 2018 Orange", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, again.Outcome)
	assert.Equal(t, res.TeamID, again.TeamID)
}

func TestRegistry_SeedRejectsConflictingAliases(t *testing.T) {
	fresh := newTestRegistry(t)
	now := time.Now().UTC()
	err := fresh.Seed([]model.CanonicalTeam{
		{ID: "t1", CanonicalName: "A", Aliases: []string{"Shared Name"}, CreatedAt: now},
		{ID: "t2", CanonicalName: "B", Aliases: []string{"Shared Name"}, CreatedAt: now},
	})
	assert.Error(t, err)
}
