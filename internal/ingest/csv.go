package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// Column aliases seen across provider exports. Keys are normalized
// header names (lowercase, spaces collapsed to underscores).
var columnAliases = map[string]string{
	"team":              "team",
	"team_name":         "team",
	"raw_team_name":     "team",
	"opponent":          "opponent",
	"opponent_name":     "opponent",
	"raw_opponent_name": "opponent",
	"date":              "date",
	"match_date":        "date",
	"gf":                "goals_for",
	"goals_for":         "goals_for",
	"score_for":         "goals_for",
	"ga":                "goals_against",
	"goals_against":     "goals_against",
	"score_against":     "goals_against",
	"tier":              "tier",
	"trust_tier":        "tier",
	"provenance":        "provenance",
	"source":            "provenance",
	"cohort":            "cohort_hint",
	"cohort_hint":       "cohort_hint",
	"age_group":         "cohort_hint",
}

// ParseCSV reads a header-led CSV export into source records.
func ParseCSV(r io.Reader) ([]model.SourceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var out []model.SourceRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read csv row %d", line)
		}
		rec, err := rowToRecord(row, cols)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: csv row %d", line)
		}
		m, err := rec.ToModel()
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: csv row %d", line)
		}
		out = append(out, m)
	}
	return out, nil
}

// mapColumns resolves header names to field indexes. Team, date, and
// both score columns are required; the rest are optional.
func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int)
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if field, ok := columnAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	for _, required := range []string{"team", "date", "goals_for", "goals_against"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("ingest: missing required column %q", required)
		}
	}
	return cols, nil
}

func rowToRecord(row []string, cols map[string]int) (Record, error) {
	cell := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	gf, err := strconv.Atoi(cell("goals_for"))
	if err != nil {
		return Record{}, eris.Errorf("bad goals_for %q", cell("goals_for"))
	}
	ga, err := strconv.Atoi(cell("goals_against"))
	if err != nil {
		return Record{}, eris.Errorf("bad goals_against %q", cell("goals_against"))
	}

	tier := model.Tier(strings.ToLower(cell("tier")))
	if tier == "" {
		tier = model.TierMedium
	}

	return Record{
		RawTeamName:     cell("team"),
		RawOpponentName: cell("opponent"),
		Date:            cell("date"),
		GoalsFor:        gf,
		GoalsAgainst:    ga,
		Tier:            tier,
		Provenance:      cell("provenance"),
		CohortHint:      model.Cohort(cell("cohort_hint")),
	}, nil
}
