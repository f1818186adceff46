// Package engine orchestrates aggregation passes: one deterministic,
// complete recomputation of aliases, match records, and team aggregates
// from the full currently-available source record set, committed as an
// atomic snapshot.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/LivingRiskyCo/dsx-tracker/internal/aggregator"
	"github.com/LivingRiskyCo/dsx-tracker/internal/cohort"
	"github.com/LivingRiskyCo/dsx-tracker/internal/config"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/rating"
	"github.com/LivingRiskyCo/dsx-tracker/internal/resolver"
	"github.com/LivingRiskyCo/dsx-tracker/internal/store"
)

// ErrPassInProgress is returned when an aggregation pass is attempted
// while another one holds the exclusive lock. The attempt fails fast
// rather than queueing.
var ErrPassInProgress = eris.New("engine: aggregation pass already in progress")

// Engine runs aggregation passes against a store.
type Engine struct {
	store      store.Store
	cfg        *config.Config
	classifier *cohort.Classifier

	mu  sync.Mutex // in-process pass exclusion; the store lock covers other processes
	now func() time.Time
}

// New creates an engine. The classifier's division rules file is loaded
// here so a bad rules path fails before any pass starts.
func New(st store.Store, cfg *config.Config) (*Engine, error) {
	classifier, err := cohort.New(cfg.Cohort)
	if err != nil {
		return nil, err
	}
	return &Engine{store: st, cfg: cfg, classifier: classifier, now: time.Now}, nil
}

// PassResult summarizes a committed pass.
type PassResult struct {
	Snapshot model.Snapshot
	Reviews  int
	Replaced int
	Duration time.Duration
}

// RunPass consumes the full stored source record set and performs one
// complete recomputation. It either commits completely or, on any
// failure, leaves the prior snapshot fully intact.
func (e *Engine) RunPass(ctx context.Context) (*PassResult, error) {
	if !e.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer e.mu.Unlock()

	passID := uuid.New().String()
	if err := e.store.AcquirePassLock(ctx, passID); err != nil {
		if eris.Is(err, store.ErrPassLockHeld) {
			return nil, ErrPassInProgress
		}
		return nil, err
	}
	defer func() {
		if err := e.store.ReleasePassLock(ctx, passID); err != nil {
			zap.L().Error("engine: release pass lock", zap.Error(err))
		}
	}()

	started := e.now()
	zap.L().Info("engine: pass started", zap.String("pass_id", passID))

	records, err := e.store.ListSourceRecords(ctx)
	if err != nil {
		return nil, err
	}

	registry := resolver.NewRegistry(e.cfg.Resolver)
	prior := make(map[string]model.CanonicalTeam)
	if snap, err := e.store.LatestSnapshot(ctx); err != nil {
		return nil, err
	} else if snap != nil {
		// Seed from the committed registry so canonical ids stay stable
		// across passes.
		teams, err := e.store.ListTeams(ctx, snap.ID)
		if err != nil {
			return nil, err
		}
		if err := registry.Seed(teams); err != nil {
			return nil, err
		}
		for _, t := range teams {
			prior[t.ID] = t
		}
	}

	agg := aggregator.New(registry)
	meta := newSignalMeta()
	for _, rec := range records {
		if err := agg.Ingest(rec); err != nil {
			if eris.Is(err, aggregator.ErrMalformedRecord) {
				zap.L().Warn("engine: skipping malformed source record",
					zap.String("raw_team", rec.RawTeamName),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}
		meta.observe(rec)
	}

	e.classify(registry, agg, meta, prior)

	byTeam := agg.ByTeam()
	teams := registry.Teams()
	aggregates := make([]model.TeamAggregate, 0, len(teams))
	for _, team := range teams {
		aggregates = append(aggregates,
			rating.Aggregate(team.ID, byTeam[team.ID], e.cfg.Rating.MinGames, started))
	}

	snapshot, err := e.store.CommitSnapshot(ctx, store.SnapshotCommit{
		PassID:      passID,
		Teams:       teams,
		Matches:     agg.Matches(),
		Aggregates:  aggregates,
		Reviews:     registry.Reviews(),
		SkippedRows: agg.Skipped(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "engine: commit pass")
	}

	result := &PassResult{
		Snapshot: *snapshot,
		Reviews:  len(registry.Reviews()),
		Replaced: agg.Replaced(),
		Duration: e.now().Sub(started),
	}
	zap.L().Info("engine: pass committed",
		zap.String("pass_id", passID),
		zap.String("snapshot_id", snapshot.ID),
		zap.Int("teams", snapshot.Teams),
		zap.Int("matches", snapshot.Matches),
		zap.Int("skipped_rows", snapshot.SkippedRows),
		zap.Int("reviews", result.Reviews),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// signalMeta gathers per-raw-name classification inputs seen during
// ingestion: explicit cohort hints and provenance labels.
type signalMeta struct {
	hints  map[string][]model.Cohort
	labels map[string][]string
}

func newSignalMeta() *signalMeta {
	return &signalMeta{
		hints:  make(map[string][]model.Cohort),
		labels: make(map[string][]string),
	}
}

func (m *signalMeta) observe(rec model.SourceRecord) {
	names := []string{rec.RawTeamName}
	if rec.RawOpponentName != "" {
		names = append(names, rec.RawOpponentName)
	}
	for _, name := range names {
		key := resolver.NormalizeName(name)
		if rec.CohortHint.Known() {
			m.hints[key] = append(m.hints[key], rec.CohortHint)
		}
		if rec.Provenance != "" {
			m.labels[key] = append(m.labels[key], rec.Provenance)
		}
	}
}

// classify runs the two-stage cohort assignment: name and division
// signals first, then opponent co-occurrence over the stage-one result,
// reconciled against the prior pass so a weaker signal never downgrades
// an existing high-confidence classification.
func (e *Engine) classify(registry *resolver.Registry, agg *aggregator.Aggregator, meta *signalMeta, prior map[string]model.CanonicalTeam) {
	teams := registry.Teams()

	base := make(map[string][]cohort.Signal, len(teams))
	stageOne := make(map[string]model.Cohort, len(teams))
	for _, team := range teams {
		signals := e.baseSignals(team, meta)
		base[team.ID] = signals
		c, _ := e.classifier.Combine(signals)
		stageOne[team.ID] = c
	}

	byTeam := agg.ByTeam()
	for _, team := range teams {
		signals := base[team.ID]
		var opponents []model.Cohort
		for _, m := range byTeam[team.ID] {
			if m.OpponentID != "" {
				opponents = append(opponents, stageOne[m.OpponentID])
			}
		}
		if s, ok := e.classifier.CoOccurrenceSignal(opponents); ok {
			signals = append(signals, s)
		}

		c, conf := e.classifier.Combine(signals)
		if prev, ok := prior[team.ID]; ok {
			c, conf = e.classifier.Reconcile(prev.Cohort, prev.CohortConfidence, c, conf)
		}
		registry.SetCohort(team.ID, c, conf)
	}
}

func (e *Engine) baseSignals(team model.CanonicalTeam, meta *signalMeta) []cohort.Signal {
	var signals []cohort.Signal
	for _, alias := range team.Aliases {
		if s, ok := e.classifier.NameSignal(alias); ok {
			signals = append(signals, s)
			break
		}
	}
	for _, alias := range team.Aliases {
		key := resolver.NormalizeName(alias)
		for _, hint := range meta.hints[key] {
			if s, ok := e.classifier.HintSignal(hint); ok {
				signals = append(signals, s)
			}
		}
		for _, label := range meta.labels[key] {
			if s, ok := e.classifier.DivisionSignal(label); ok {
				signals = append(signals, s)
			}
		}
	}
	return signals
}
