package cohort

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LivingRiskyCo/dsx-tracker/internal/config"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

func testCohortConfig() config.CohortConfig {
	return config.CohortConfig{
		NameTokenWeight:    0.6,
		DivisionWeight:     0.3,
		CoOccurrenceWeight: 0.1,
		StickyConfidence:   0.6,
		SeasonYear:         2026,
	}
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(testCohortConfig())
	require.NoError(t, err)
	return c
}

func TestNameSignal(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name  string
		in    string
		want  model.Cohort
		fires bool
	}{
		{"explicit birth year", "Dublin DSX 2018 Orange", "2018", true},
		{"u-age label", "Stars U8 Black", "2018", true},
		{"bu-age label", "OCL BU08 Stripes", "2018", true},
		{"year squad marker", "Club Ohio West 18B Academy II", "2018", true},
		{"u9 maps one year earlier", "Galaxy U9", "2017", true},
		{"no token", "Westside Wanderers Blue", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := c.NameSignal(tt.in)
			assert.Equal(t, tt.fires, ok)
			if tt.fires {
				assert.Equal(t, tt.want, s.Cohort)
				assert.Equal(t, KindNameToken, s.Kind)
				assert.Equal(t, 0.6, s.Weight)
			}
		})
	}
}

func TestDivisionSignal_FromRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - pattern: "(?i)stripes"
    cohort: "2018"
  - pattern: "(?i)b09"
    cohort: "2017"
`), 0o644))

	cfg := testCohortConfig()
	cfg.RulesPath = path
	c, err := New(cfg)
	require.NoError(t, err)

	s, ok := c.DivisionSignal("OCL Stripes Fall 2025")
	require.True(t, ok)
	assert.Equal(t, model.Cohort("2018"), s.Cohort)
	assert.Equal(t, KindDivision, s.Kind)

	s, ok = c.DivisionSignal("MVYSA B09-3")
	require.True(t, ok)
	assert.Equal(t, model.Cohort("2017"), s.Cohort)
}

func TestDivisionSignal_FallsBackToAgeToken(t *testing.T) {
	c := newTestClassifier(t)
	s, ok := c.DivisionSignal("Haunted Classic B08 Orange")
	require.True(t, ok)
	assert.Equal(t, model.Cohort("2018"), s.Cohort)
}

func TestNew_BadRulesPath(t *testing.T) {
	cfg := testCohortConfig()
	cfg.RulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestCoOccurrenceSignal(t *testing.T) {
	c := newTestClassifier(t)

	t.Run("majority cohort wins", func(t *testing.T) {
		s, ok := c.CoOccurrenceSignal([]model.Cohort{"2018", "2018", "2017", model.CohortUnknown})
		require.True(t, ok)
		assert.Equal(t, model.Cohort("2018"), s.Cohort)
		assert.Equal(t, 0.1, s.Weight)
	})

	t.Run("all unknown does not fire", func(t *testing.T) {
		_, ok := c.CoOccurrenceSignal([]model.Cohort{model.CohortUnknown, ""})
		assert.False(t, ok)
	})
}

func TestCombine(t *testing.T) {
	c := newTestClassifier(t)

	t.Run("no signals yields unknown zero", func(t *testing.T) {
		cohort, conf := c.Combine(nil)
		assert.Equal(t, model.CohortUnknown, cohort)
		assert.Zero(t, conf)
	})

	t.Run("single name signal", func(t *testing.T) {
		cohort, conf := c.Combine([]Signal{
			{Kind: KindNameToken, Weight: 0.6, Cohort: "2018"},
		})
		assert.Equal(t, model.Cohort("2018"), cohort)
		assert.InDelta(t, 0.6, conf, 1e-9)
	})

	t.Run("agreeing signals sum", func(t *testing.T) {
		cohort, conf := c.Combine([]Signal{
			{Kind: KindNameToken, Weight: 0.6, Cohort: "2018"},
			{Kind: KindDivision, Weight: 0.3, Cohort: "2018"},
			{Kind: KindCoOccurrence, Weight: 0.1, Cohort: "2018"},
		})
		assert.Equal(t, model.Cohort("2018"), cohort)
		assert.InDelta(t, 1.0, conf, 1e-9)
	})

	t.Run("weighted sum not override", func(t *testing.T) {
		// Division and co-occurrence disagree with the name token but the
		// name token weight wins.
		cohort, conf := c.Combine([]Signal{
			{Kind: KindNameToken, Weight: 0.6, Cohort: "2018"},
			{Kind: KindDivision, Weight: 0.3, Cohort: "2017"},
			{Kind: KindCoOccurrence, Weight: 0.1, Cohort: "2017"},
		})
		assert.Equal(t, model.Cohort("2018"), cohort)
		assert.InDelta(t, 0.6, conf, 1e-9)
	})

	t.Run("repeat signals of one kind count once", func(t *testing.T) {
		cohort, conf := c.Combine([]Signal{
			{Kind: KindDivision, Weight: 0.3, Cohort: "2018"},
			{Kind: KindDivision, Weight: 0.3, Cohort: "2018"},
		})
		assert.Equal(t, model.Cohort("2018"), cohort)
		assert.InDelta(t, 0.3, conf, 1e-9)
	})
}

func TestReconcile(t *testing.T) {
	c := newTestClassifier(t)

	t.Run("stronger signal raises classification", func(t *testing.T) {
		cohort, conf := c.Reconcile("2018", 0.3, "2017", 0.9)
		assert.Equal(t, model.Cohort("2017"), cohort)
		assert.Equal(t, 0.9, conf)
	})

	t.Run("weaker signal never downgrades high confidence", func(t *testing.T) {
		cohort, conf := c.Reconcile("2018", 0.9, "2017", 0.3)
		assert.Equal(t, model.Cohort("2018"), cohort)
		assert.Equal(t, 0.9, conf)
	})

	t.Run("unknown next keeps prior", func(t *testing.T) {
		cohort, conf := c.Reconcile("2018", 0.4, model.CohortUnknown, 0)
		assert.Equal(t, model.Cohort("2018"), cohort)
		assert.Equal(t, 0.4, conf)
	})

	t.Run("low-confidence prior is replaceable", func(t *testing.T) {
		cohort, _ := c.Reconcile("2018", 0.3, "2017", 0.6)
		assert.Equal(t, model.Cohort("2017"), cohort)
	})
}
