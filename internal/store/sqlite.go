package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS source_records (
	id            TEXT PRIMARY KEY,
	raw_team      TEXT NOT NULL,
	raw_opponent  TEXT,
	date          DATETIME NOT NULL,
	goals_for     INTEGER NOT NULL,
	goals_against INTEGER NOT NULL,
	tier          TEXT NOT NULL,
	provenance    TEXT NOT NULL,
	cohort_hint   TEXT,
	ingested_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pass_lock (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	pass_id     TEXT NOT NULL,
	acquired_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	pass_id      TEXT NOT NULL,
	teams        INTEGER NOT NULL,
	matches      INTEGER NOT NULL,
	skipped_rows INTEGER NOT NULL,
	committed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS teams (
	snapshot_id       TEXT NOT NULL,
	id                TEXT NOT NULL,
	canonical_name    TEXT NOT NULL,
	aliases           TEXT NOT NULL,
	cohort            TEXT NOT NULL,
	cohort_confidence REAL NOT NULL,
	created_at        DATETIME NOT NULL,
	seq               INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, id)
);

CREATE TABLE IF NOT EXISTS matches (
	snapshot_id   TEXT NOT NULL,
	dedupe_key    TEXT NOT NULL,
	team_id       TEXT NOT NULL,
	opponent_id   TEXT,
	date          DATETIME NOT NULL,
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
	ppg            REAL NOT NULL,
	gd_per_game    REAL NOT NULL,
	strength_index REAL NOT NULL,
	low_sample     INTEGER NOT NULL,
	computed_at    DATETIME NOT NULL,
	PRIMARY KEY (snapshot_id, team_id)
);

CREATE TABLE IF NOT EXISTS reviews (
	snapshot_id TEXT NOT NULL,
	id          TEXT NOT NULL,
	raw_name    TEXT NOT NULL,
	candidates  TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	PRIMARY KEY (snapshot_id, id)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_committed_at ON snapshots(committed_at);
CREATE INDEX IF NOT EXISTS idx_matches_team ON matches(snapshot_id, team_id);
CREATE INDEX IF NOT EXISTS idx_aggregates_strength ON aggregates(snapshot_id, strength_index);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSourceRecords(ctx context.Context, recs []model.SourceRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save records")
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	for _, rec := range recs {
		hint := ""
		if rec.CohortHint.Known() {
			hint = string(rec.CohortHint)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO source_records
			 (id, raw_team, raw_opponent, date, goals_for, goals_against, tier, provenance, cohort_hint)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ContentHash(), rec.RawTeamName, nullable(rec.RawOpponentName), rec.Date.UTC(),
			rec.GoalsFor, rec.GoalsAgainst, string(rec.Tier), rec.Provenance, nullable(hint),
		)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: insert source record")
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save records")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListSourceRecords(ctx context.Context) ([]model.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_team, raw_opponent, date, goals_for, goals_against, tier, provenance, cohort_hint
		 FROM source_records ORDER BY ingested_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source records")
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var rec model.SourceRecord
		var opponent, hint sql.NullString
		var tier string
		if err := rows.Scan(&rec.RawTeamName, &opponent, &rec.Date, &rec.GoalsFor,
			&rec.GoalsAgainst, &tier, &rec.Provenance, &hint); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source record")
		}
		rec.RawOpponentName = opponent.String
		rec.Tier = model.Tier(tier)
		if hint.Valid {
			rec.CohortHint = model.Cohort(hint.String)
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate source records")
}

func (s *SQLiteStore) AcquirePassLock(ctx context.Context, passID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pass_lock (id, pass_id) VALUES (1, ?)`, passID)
	if err != nil {
		return eris.Wrap(err, "sqlite: acquire pass lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: pass lock rows affected")
	}
	if n == 0 {
		return ErrPassLockHeld
	}
	return nil
}

func (s *SQLiteStore) ReleasePassLock(ctx context.Context, passID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pass_lock WHERE id = 1 AND pass_id = ?`, passID)
	return eris.Wrap(err, "sqlite: release pass lock")
}

func (s *SQLiteStore) CommitSnapshot(ctx context.Context, commit SnapshotCommit) (*model.Snapshot, error) {
	snapshotID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin commit")
	}
	defer tx.Rollback() //nolint:errcheck

	for i, team := range commit.Teams {
		aliases, err := json.Marshal(team.Aliases)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal aliases")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO teams (snapshot_id, id, canonical_name, aliases, cohort, cohort_confidence, created_at, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snapshotID, team.ID, team.CanonicalName, string(aliases),
			string(team.Cohort), team.CohortConfidence, team.CreatedAt.UTC(), i,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert team %s", team.ID)
		}
	}

	for i, m := range commit.Matches {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO matches (snapshot_id, dedupe_key, team_id, opponent_id, date, goals_for, goals_against, result, tier, provenance, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snapshotID, m.DedupeKey, m.TeamID, nullable(m.OpponentID), m.Date.UTC(),
			m.GoalsFor, m.GoalsAgainst, string(m.Result), string(m.Tier), m.Provenance, i,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert match %s", m.DedupeKey)
		}
	}

	for _, agg := range commit.Aggregates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO aggregates (snapshot_id, team_id, games_played, wins, draws, losses, goals_for, goals_against, points, ppg, gd_per_game, strength_index, low_sample, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snapshotID, agg.TeamID, agg.GamesPlayed, agg.Wins, agg.Draws, agg.Losses,
			agg.GoalsFor, agg.GoalsAgainst, agg.Points, agg.PPG, agg.GDPerGame,
			agg.StrengthIndex, agg.LowSample, agg.LastComputedAt.UTC(),
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert aggregate %s", agg.TeamID)
		}
	}

	for _, rev := range commit.Reviews {
		candidates, err := json.Marshal(rev.Candidates)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal review candidates")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reviews (snapshot_id, id, raw_name, candidates, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			snapshotID, rev.ID, rev.RawName, string(candidates), rev.CreatedAt.UTC(),
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert review %s", rev.ID)
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

	// The snapshot row goes in last: until it exists, readers cannot see
	// any of the data written above.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, pass_id, teams, matches, skipped_rows, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.PassID, snapshot.Teams, snapshot.Matches,
		snapshot.SkippedRows, snapshot.CommittedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit snapshot")
	}
	return snapshot, nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pass_id, teams, matches, skipped_rows, committed_at
		 FROM snapshots ORDER BY committed_at DESC, rowid DESC LIMIT 1`)
	var snap model.Snapshot
	err := row.Scan(&snap.ID, &snap.PassID, &snap.Teams, &snap.Matches, &snap.SkippedRows, &snap.CommittedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshot")
	}
	return &snap, nil
}

func (s *SQLiteStore) ListTeams(ctx context.Context, snapshotID string) ([]model.CanonicalTeam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canonical_name, aliases, cohort, cohort_confidence, created_at
		 FROM teams WHERE snapshot_id = ? ORDER BY seq`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list teams")
	}
	defer rows.Close()

	var out []model.CanonicalTeam
	for rows.Next() {
		var t model.CanonicalTeam
		var aliases, cohort string
		if err := rows.Scan(&t.ID, &t.CanonicalName, &aliases, &cohort, &t.CohortConfidence, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan team")
		}
		if err := json.Unmarshal([]byte(aliases), &t.Aliases); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal aliases for %s", t.ID)
		}
		t.Cohort = model.Cohort(cohort)
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate teams")
}

func (s *SQLiteStore) ListMatches(ctx context.Context, snapshotID string) ([]model.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dedupe_key, team_id, opponent_id, date, goals_for, goals_against, result, tier, provenance
		 FROM matches WHERE snapshot_id = ? ORDER BY seq`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list matches")
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		var m model.MatchRecord
		var opponent sql.NullString
		var result, tier string
		if err := rows.Scan(&m.DedupeKey, &m.TeamID, &opponent, &m.Date, &m.GoalsFor,
			&m.GoalsAgainst, &result, &tier, &m.Provenance); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		m.OpponentID = opponent.String
		m.Result = model.Result(result)
		m.Tier = model.Tier(tier)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate matches")
}

func (s *SQLiteStore) ListAggregates(ctx context.Context, snapshotID string) ([]model.TeamAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id, games_played, wins, draws, losses, goals_for, goals_against, points, ppg, gd_per_game, strength_index, low_sample, computed_at
		 FROM aggregates WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list aggregates")
	}
	defer rows.Close()

	var out []model.TeamAggregate
	for rows.Next() {
		var a model.TeamAggregate
		if err := rows.Scan(&a.TeamID, &a.GamesPlayed, &a.Wins, &a.Draws, &a.Losses,
			&a.GoalsFor, &a.GoalsAgainst, &a.Points, &a.PPG, &a.GDPerGame,
			&a.StrengthIndex, &a.LowSample, &a.LastComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan aggregate")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate aggregates")
}

func (s *SQLiteStore) ListReviews(ctx context.Context, snapshotID string) ([]model.ReviewEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, raw_name, candidates, created_at
		 FROM reviews WHERE snapshot_id = ? ORDER BY created_at, id`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var out []model.ReviewEvent
	for rows.Next() {
		var r model.ReviewEvent
		var candidates string
		if err := rows.Scan(&r.ID, &r.RawName, &candidates, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review")
		}
		if err := json.Unmarshal([]byte(candidates), &r.Candidates); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal candidates for %s", r.ID)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reviews")
}

// nullable maps "" to NULL so optional text columns stay NULL rather
// than empty string.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
