package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

func TestToModel_DateLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-09-14", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
		{"2025-09-14T15:30:00Z", time.Date(2025, 9, 14, 15, 30, 0, 0, time.UTC)},
		{"9/14/2025", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
		{"09/14/2025", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rec := Record{RawTeamName: "A", Date: tt.in, Tier: model.TierHigh}
			m, err := rec.ToModel()
			require.NoError(t, err)
			assert.True(t, m.Date.Equal(tt.want))
		})
	}
}

func TestToModel_BadDate(t *testing.T) {
	rec := Record{RawTeamName: "A", Date: "next saturday", Tier: model.TierHigh}
	_, err := rec.ToModel()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable date")
}

func TestParseCSV(t *testing.T) {
	csv := strings.Join([]string{
		"Team,Opponent,Date,GF,GA,Tier,Source,Age Group",
		"Dublin DSX 2018 Orange,Club Ohio West 18B,2025-09-14,3,1,high,league standings,2018",
		"Dublin DSX 2018 Orange,,2025-09-21,0,2,,opponent schedule,",
	}, "\n")

	recs, err := ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "Dublin DSX 2018 Orange", recs[0].RawTeamName)
	assert.Equal(t, "Club Ohio West 18B", recs[0].RawOpponentName)
	assert.Equal(t, 3, recs[0].GoalsFor)
	assert.Equal(t, 1, recs[0].GoalsAgainst)
	assert.Equal(t, model.TierHigh, recs[0].Tier)
	assert.Equal(t, "league standings", recs[0].Provenance)
	assert.Equal(t, model.Cohort("2018"), recs[0].CohortHint)

	// Missing tier defaults to medium, missing opponent stays empty.
	assert.Equal(t, model.TierMedium, recs[1].Tier)
	assert.Empty(t, recs[1].RawOpponentName)
}

func TestParseCSV_MissingRequiredColumn(t *testing.T) {
	csv := "Team,Opponent,GF,GA\nA,B,1,0"
	_, err := ParseCSV(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "date"`)
}

func TestParseCSV_BadScore(t *testing.T) {
	csv := "Team,Date,GF,GA\nA,2025-09-14,three,1"
	_, err := ParseCSV(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goals_for")
}

func TestParseCSV_Empty(t *testing.T) {
	recs, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseJSON(t *testing.T) {
	payload := `[
		{"raw_team_name":"Dublin DSX 2018 Orange","raw_opponent_name":"Club Ohio West 18B","date":"2025-09-14","goals_for":3,"goals_against":1,"tier":"high","provenance":"league standings"}
	]`
	recs, err := ParseJSON(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Dublin DSX 2018 Orange", recs[0].RawTeamName)
	assert.Equal(t, model.TierHigh, recs[0].Tier)
}

func TestParseJSON_BadElement(t *testing.T) {
	payload := `[{"raw_team_name":"A","date":"bogus","goals_for":1,"goals_against":0,"tier":"high"}]`
	_, err := ParseJSON(strings.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 0")
}

func writeTestXLSX(t *testing.T, path string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	require.NoError(t, err)

	rows := [][]string{
		{"team", "opponent", "date", "goals_for", "goals_against", "tier", "provenance"},
		{"Dublin DSX 2018 Orange", "Club Ohio West 18B", "2025-09-14", "3", "1", "high", "tournament results"},
		{"", "", "", "", "", "", ""},
		{"Dublin DSX 2018 Orange", "Worthington United 2018 White", "2025-09-21", "0", "2", "low", "head to head"},
	}
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(path))
}

func TestParseXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	writeTestXLSX(t, path)

	recs, err := ParseXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, model.TierHigh, recs[0].Tier)
	assert.Equal(t, "tournament results", recs[0].Provenance)
	assert.Equal(t, model.TierLow, recs[1].Tier)
}

func TestParseXLSX_SheetNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	writeTestXLSX(t, path)

	_, err := ParseXLSX(path, XLSXOptions{SheetName: "Standings"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_LocalCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"team,date,gf,ga,tier\nDublin DSX 2018 Orange,2025-09-14,3,1,high\n"), 0o644))

	recs, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Dublin DSX 2018 Orange", recs[0].RawTeamName)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load(context.Background(), "results.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestLoad_RemoteCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("team,date,gf,ga\nDublin DSX 2018 Orange,2025-09-14,3,1\n")) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	recs, err := Load(context.Background(), srv.URL+"/exports/results.csv")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.TierMedium, recs[0].Tier)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	body, err := Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close() //nolint:errcheck
	assert.Equal(t, 3, attempts)
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}
