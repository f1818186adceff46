package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LivingRiskyCo/dsx-tracker/internal/config"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/rank"
	"github.com/LivingRiskyCo/dsx-tracker/internal/store"
)

func newTestServer(t *testing.T, seed bool) *httptest.Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dsx.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	if seed {
		commitFixture(t, st)
	}

	srv := New(rank.NewService(st), config.ServerConfig{
		RatePerSecond: 100,
		RateBurst:     100,
	}, 3)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func commitFixture(t *testing.T, st store.Store) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	date := time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)
	_, err := st.CommitSnapshot(context.Background(), store.SnapshotCommit{
		PassID: "pass-1",
		Teams: []model.CanonicalTeam{{
			ID:               "t-a",
			CanonicalName:    "Dublin DSX 2018 Orange",
			Aliases:          []string{"Dublin DSX 2018 Orange", "DSX Orange"},
			Cohort:           "2018",
			CohortConfidence: 0.9,
			CreatedAt:        now,
		}, {
			ID:               "t-b",
			CanonicalName:    "Club Ohio West 18B",
			Aliases:          []string{"Club Ohio West 18B"},
			Cohort:           "2018",
			CohortConfidence: 0.9,
			CreatedAt:        now,
		}},
		Matches: []model.MatchRecord{{
			DedupeKey:    model.DedupeKey("t-a", "t-b", date, 3, 1),
			TeamID:       "t-a",
			OpponentID:   "t-b",
			Date:         date,
			GoalsFor:     3,
			GoalsAgainst: 1,
			Result:       model.ResultWin,
			Tier:         model.TierHigh,
			Provenance:   "league standings",
		}},
		Aggregates: []model.TeamAggregate{{
			TeamID: "t-a", GamesPlayed: 5, Wins: 4, Draws: 1,
			PPG: 2.6, StrengthIndex: 82.3, LastComputedAt: now,
		}, {
			TeamID: "t-b", GamesPlayed: 5, Losses: 5,
			PPG: 0, StrengthIndex: 10.0, LastComputedAt: now,
		}},
	})
	require.NoError(t, err)
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, false)
	resp, body := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Rankings(t *testing.T) {
	ts := newTestServer(t, true)
	resp, body := get(t, ts, "/rankings?cohort=2018&min_games=3")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	top := rows[0].(map[string]any)
	assert.Equal(t, "t-a", top["team_id"])
	assert.EqualValues(t, 1, top["rank"])
	assert.NotEmpty(t, body["snapshot_id"])
}

func TestServer_Rankings_BadMinGames(t *testing.T) {
	ts := newTestServer(t, true)
	resp, body := get(t, ts, "/rankings?min_games=lots")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "min_games")
}

func TestServer_Rankings_NoSnapshot(t *testing.T) {
	ts := newTestServer(t, false)
	resp, body := get(t, ts, "/rankings")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "no committed snapshot")
}

func TestServer_Compare(t *testing.T) {
	ts := newTestServer(t, true)
	resp, body := get(t, ts, "/compare?a=dsx+orange&b=t-b")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(model.ComparisonHeadToHead), result["status"])
	assert.InDelta(t, 72.3, result["strength_delta"].(float64), 1e-9)
}

func TestServer_Compare_MissingParams(t *testing.T) {
	ts := newTestServer(t, true)
	resp, _ := get(t, ts, "/compare?a=t-a")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Compare_UnknownTeam(t *testing.T) {
	ts := newTestServer(t, true)
	resp, body := get(t, ts, "/compare?a=t-a&b=nobody")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown team", body["error"])
}

func TestServer_TeamMatches(t *testing.T) {
	ts := newTestServer(t, true)
	resp, body := get(t, ts, "/teams/t-a/matches")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	team, ok := body["team"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dublin DSX 2018 Orange", team["canonical_name"])
	matches, ok := body["matches"].([]any)
	require.True(t, ok)
	assert.Len(t, matches, 1)
}

func TestServer_Throttle(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dsx.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	srv := New(rank.NewService(st), config.ServerConfig{
		RatePerSecond: 1,
		RateBurst:     1,
	}, 3)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	first, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}
