package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// Pool abstracts pgxpool.Pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS source_records (
	id            TEXT PRIMARY KEY,
	raw_team      TEXT NOT NULL,
	raw_opponent  TEXT,
	date          TIMESTAMPTZ NOT NULL,
	goals_for     INTEGER NOT NULL,
	goals_against INTEGER NOT NULL,
	tier          TEXT NOT NULL,
	provenance    TEXT NOT NULL,
	cohort_hint   TEXT,
	ingested_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pass_lock (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	pass_id     TEXT NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	pass_id      TEXT NOT NULL,
	teams        INTEGER NOT NULL,
	matches      INTEGER NOT NULL,
	skipped_rows INTEGER NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS teams (
	snapshot_id       TEXT NOT NULL,
	id                TEXT NOT NULL,
	canonical_name    TEXT NOT NULL,
	aliases           JSONB NOT NULL,
	cohort            TEXT NOT NULL,
	cohort_confidence DOUBLE PRECISION NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	seq               INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, id)
);

CREATE TABLE IF NOT EXISTS matches (
	snapshot_id   TEXT NOT NULL,
	dedupe_key    TEXT NOT NULL,
	team_id       TEXT NOT NULL,
	opponent_id   TEXT,
	date          TIMESTAMPTZ NOT NULL,
	goals_for     INTEGER NOT NULL,
	goals_against INTEGER NOT NULL,
	result        TEXT NOT NULL,
	tier          TEXT NOT NULL,
	provenance    TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, dedupe_key)
);

CREATE TABLE IF NOT EXISTS aggregates (
	snapshot_id    TEXT NOT NULL,
	team_id        TEXT NOT NULL,
	games_played   INTEGER NOT NULL,
	wins           INTEGER NOT NULL,
	draws          INTEGER NOT NULL,
	losses         INTEGER NOT NULL,
	goals_for      INTEGER NOT NULL,
	goals_against  INTEGER NOT NULL,
	points         INTEGER NOT NULL,
	ppg            DOUBLE PRECISION NOT NULL,
	gd_per_game    DOUBLE PRECISION NOT NULL,
	strength_index DOUBLE PRECISION NOT NULL,
	low_sample     BOOLEAN NOT NULL,
	computed_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (snapshot_id, team_id)
);

CREATE TABLE IF NOT EXISTS reviews (
	snapshot_id TEXT NOT NULL,
	id          TEXT NOT NULL,
	raw_name    TEXT NOT NULL,
	candidates  JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (snapshot_id, id)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_committed_at ON snapshots(committed_at);
CREATE INDEX IF NOT EXISTS idx_matches_team ON matches(snapshot_id, team_id);
CREATE INDEX IF NOT EXISTS idx_aggregates_strength ON aggregates(snapshot_id, strength_index);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveSourceRecords(ctx context.Context, recs []model.SourceRecord) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save records")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := 0
	for _, rec := range recs {
		hint := ""
		if rec.CohortHint.Known() {
			hint = string(rec.CohortHint)
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO source_records
			 (id, raw_team, raw_opponent, date, goals_for, goals_against, tier, provenance, cohort_hint)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ContentHash(), rec.RawTeamName, nullable(rec.RawOpponentName), rec.Date.UTC(),
			rec.GoalsFor, rec.GoalsAgainst, string(rec.Tier), rec.Provenance, nullable(hint),
		)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: insert source record")
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit save records")
	}
	return inserted, nil
}

func (s *PostgresStore) ListSourceRecords(ctx context.Context) ([]model.SourceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT raw_team, raw_opponent, date, goals_for, goals_against, tier, provenance, cohort_hint
		 FROM source_records ORDER BY ingested_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source records")
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var rec model.SourceRecord
		var opponent, hint *string
		var tier string
		if err := rows.Scan(&rec.RawTeamName, &opponent, &rec.Date, &rec.GoalsFor,
			&rec.GoalsAgainst, &tier, &rec.Provenance, &hint); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source record")
		}
		if opponent != nil {
			rec.RawOpponentName = *opponent
		}
		rec.Tier = model.Tier(tier)
		if hint != nil {
			rec.CohortHint = model.Cohort(*hint)
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate source records")
}

func (s *PostgresStore) AcquirePassLock(ctx context.Context, passID string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO pass_lock (id, pass_id) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`, passID)
	if err != nil {
		return eris.Wrap(err, "postgres: acquire pass lock")
	}
	if tag.RowsAffected() == 0 {
		return ErrPassLockHeld
	}
	return nil
}

func (s *PostgresStore) ReleasePassLock(ctx context.Context, passID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pass_lock WHERE id = 1 AND pass_id = $1`, passID)
	return eris.Wrap(err, "postgres: release pass lock")
}

func (s *PostgresStore) CommitSnapshot(ctx context.Context, commit SnapshotCommit) (*model.Snapshot, error) {
	snapshotID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin commit")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, team := range commit.Teams {
		aliases, err := json.Marshal(team.Aliases)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal aliases")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO teams (snapshot_id, id, canonical_name, aliases, cohort, cohort_confidence, created_at, seq)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			snapshotID, team.ID, team.CanonicalName, aliases,
			string(team.Cohort), team.CohortConfidence, team.CreatedAt.UTC(), i,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert team %s", team.ID)
		}
	}

	for i, m := range commit.Matches {
		if _, err := tx.Exec(ctx,
			`INSERT INTO matches (snapshot_id, dedupe_key, team_id, opponent_id, date, goals_for, goals_against, result, tier, provenance, seq)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			snapshotID, m.DedupeKey, m.TeamID, nullable(m.OpponentID), m.Date.UTC(),
			m.GoalsFor, m.GoalsAgainst, string(m.Result), string(m.Tier), m.Provenance, i,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert match %s", m.DedupeKey)
		}
	}

	for _, agg := range commit.Aggregates {
		if _, err := tx.Exec(ctx,
			`INSERT INTO aggregates (snapshot_id, team_id, games_played, wins, draws, losses, goals_for, goals_against, points, ppg, gd_per_game, strength_index, low_sample, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			snapshotID, agg.TeamID, agg.GamesPlayed, agg.Wins, agg.Draws, agg.Losses,
			agg.GoalsFor, agg.GoalsAgainst, agg.Points, agg.PPG, agg.GDPerGame,
			agg.StrengthIndex, agg.LowSample, agg.LastComputedAt.UTC(),
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert aggregate %s", agg.TeamID)
		}
	}

	for _, rev := range commit.Reviews {
		candidates, err := json.Marshal(rev.Candidates)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal review candidates")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO reviews (snapshot_id, id, raw_name, candidates, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			snapshotID, rev.ID, rev.RawName, candidates, rev.CreatedAt.UTC(),
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert review %s", rev.ID)
		}
	}

	snapshot := &model.Snapshot{
		ID:          snapshotID,
		PassID:      commit.PassID,
		Teams:       len(commit.Teams),
		Matches:     len(commit.Matches),
		SkippedRows: commit.SkippedRows,
		CommittedAt: now,
	}

	// The snapshot row goes in last so readers switch over atomically.
	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshots (id, pass_id, teams, matches, skipped_rows, committed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snapshot.ID, snapshot.PassID, snapshot.Teams, snapshot.Matches,
		snapshot.SkippedRows, snapshot.CommittedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert snapshot")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit snapshot")
	}
	return snapshot, nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, pass_id, teams, matches, skipped_rows, committed_at
		 FROM snapshots ORDER BY committed_at DESC, id DESC LIMIT 1`)
	var snap model.Snapshot
	err := row.Scan(&snap.ID, &snap.PassID, &snap.Teams, &snap.Matches, &snap.SkippedRows, &snap.CommittedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}
	return &snap, nil
}

func (s *PostgresStore) ListTeams(ctx context.Context, snapshotID string) ([]model.CanonicalTeam, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, canonical_name, aliases, cohort, cohort_confidence, created_at
		 FROM teams WHERE snapshot_id = $1 ORDER BY seq`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list teams")
	}
	defer rows.Close()

	var out []model.CanonicalTeam
	for rows.Next() {
		var t model.CanonicalTeam
		var aliases []byte
		var cohort string
		if err := rows.Scan(&t.ID, &t.CanonicalName, &aliases, &cohort, &t.CohortConfidence, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan team")
		}
		if err := json.Unmarshal(aliases, &t.Aliases); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal aliases for %s", t.ID)
		}
		t.Cohort = model.Cohort(cohort)
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate teams")
}

func (s *PostgresStore) ListMatches(ctx context.Context, snapshotID string) ([]model.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dedupe_key, team_id, opponent_id, date, goals_for, goals_against, result, tier, provenance
		 FROM matches WHERE snapshot_id = $1 ORDER BY seq`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list matches")
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		var m model.MatchRecord
		var opponent *string
		var result, tier string
		if err := rows.Scan(&m.DedupeKey, &m.TeamID, &opponent, &m.Date, &m.GoalsFor,
			&m.GoalsAgainst, &result, &tier, &m.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		if opponent != nil {
			m.OpponentID = *opponent
		}
		m.Result = model.Result(result)
		m.Tier = model.Tier(tier)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate matches")
}

func (s *PostgresStore) ListAggregates(ctx context.Context, snapshotID string) ([]model.TeamAggregate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT team_id, games_played, wins, draws, losses, goals_for, goals_against, points, ppg, gd_per_game, strength_index, low_sample, computed_at
		 FROM aggregates WHERE snapshot_id = $1`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list aggregates")
	}
	defer rows.Close()

	var out []model.TeamAggregate
	for rows.Next() {
		var a model.TeamAggregate
		if err := rows.Scan(&a.TeamID, &a.GamesPlayed, &a.Wins, &a.Draws, &a.Losses,
			&a.GoalsFor, &a.GoalsAgainst, &a.Points, &a.PPG, &a.GDPerGame,
			&a.StrengthIndex, &a.LowSample, &a.LastComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan aggregate")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate aggregates")
}

func (s *PostgresStore) ListReviews(ctx context.Context, snapshotID string) ([]model.ReviewEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, raw_name, candidates, created_at
		 FROM reviews WHERE snapshot_id = $1 ORDER BY created_at, id`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var out []model.ReviewEvent
	for rows.Next() {
		var r model.ReviewEvent
		var candidates []byte
		if err := rows.Scan(&r.ID, &r.RawName, &candidates, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		if err := json.Unmarshal(candidates, &r.Candidates); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal candidates for %s", r.ID)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reviews")
}
