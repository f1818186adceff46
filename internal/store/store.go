// Package store persists source records, the canonical team registry,
// match records, review events, and versioned aggregate snapshots.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// ErrPassLockHeld is returned when another aggregation pass already
// holds the exclusive lock; the new attempt must abort immediately
// rather than block.
var ErrPassLockHeld = eris.New("store: pass lock held by another pass")

// SnapshotCommit is the full output of one aggregation pass, committed
// atomically: readers either see all of it or none of it.
type SnapshotCommit struct {
	PassID      string
	Teams       []model.CanonicalTeam
	Matches     []model.MatchRecord
	Aggregates  []model.TeamAggregate
	Reviews     []model.ReviewEvent
	SkippedRows int
}

// Store defines the persistence interface for the rating engine.
type Store interface {
	// Source records. Saving is idempotent: rows are keyed by content
	// hash, so re-ingesting the same file inserts nothing new.
	SaveSourceRecords(ctx context.Context, recs []model.SourceRecord) (int, error)
	ListSourceRecords(ctx context.Context) ([]model.SourceRecord, error)

	// Pass lock. At most one aggregation pass may run against a store.
	AcquirePassLock(ctx context.Context, passID string) error
	ReleasePassLock(ctx context.Context, passID string) error

	// CommitSnapshot writes a pass result in a single transaction whose
	// final statement inserts the snapshot row, so the new snapshot
	// becomes visible to readers atomically.
	CommitSnapshot(ctx context.Context, commit SnapshotCommit) (*model.Snapshot, error)

	// Reads. LatestSnapshot returns nil when no pass has committed yet.
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)
	ListTeams(ctx context.Context, snapshotID string) ([]model.CanonicalTeam, error)
	ListMatches(ctx context.Context, snapshotID string) ([]model.MatchRecord, error)
	ListAggregates(ctx context.Context, snapshotID string) ([]model.TeamAggregate, error)
	ListReviews(ctx context.Context, snapshotID string) ([]model.ReviewEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
