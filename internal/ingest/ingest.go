// Package ingest loads source records from provider exports: local or
// remote files in JSON, CSV, or XLSX form. Parsing is lenient about
// column naming but strict about dates and scores, so malformed rows
// fail here instead of polluting the store.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// Record is the wire shape of one source row: the model record with a
// plain date string as providers export it.
type Record struct {
	RawTeamName     string       `json:"raw_team_name"`
	RawOpponentName string       `json:"raw_opponent_name,omitempty"`
	Date            string       `json:"date"`
	GoalsFor        int          `json:"goals_for"`
	GoalsAgainst    int          `json:"goals_against"`
	Tier            model.Tier   `json:"tier"`
	Provenance      string       `json:"provenance"`
	CohortHint      model.Cohort `json:"cohort_hint,omitempty"`
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "1/2/2006", "01/02/2006"}

// ToModel converts the wire record, parsing the date in any of the
// layouts the known providers use.
func (r Record) ToModel() (model.SourceRecord, error) {
	var date time.Time
	var err error
	for _, layout := range dateLayouts {
		if date, err = time.Parse(layout, r.Date); err == nil {
			break
		}
	}
	if err != nil {
		return model.SourceRecord{}, eris.Errorf("ingest: unparseable date %q", r.Date)
	}
	return model.SourceRecord{
		RawTeamName:     r.RawTeamName,
		RawOpponentName: r.RawOpponentName,
		Date:            date.UTC(),
		GoalsFor:        r.GoalsFor,
		GoalsAgainst:    r.GoalsAgainst,
		Tier:            r.Tier,
		Provenance:      r.Provenance,
		CohortHint:      r.CohortHint,
	}, nil
}

// Load reads source records from a local path or an http(s)/ftp URL,
// picking the parser from the file extension.
func Load(ctx context.Context, source string) ([]model.SourceRecord, error) {
	if isRemote(source) {
		return loadRemote(ctx, source)
	}
	return loadFile(source)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "ftp://")
}

func loadFile(path string) ([]model.SourceRecord, error) {
	switch ext(path) {
	case ".xlsx":
		return ParseXLSX(path, XLSXOptions{})
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ParseCSV(f)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ParseJSON(f)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", ext(path))
	}
}

func loadRemote(ctx context.Context, rawURL string) ([]model.SourceRecord, error) {
	body, err := Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	switch ext(rawURL) {
	case ".xlsx":
		// The XLSX reader needs a seekable file, so spool to disk first.
		tmp, err := spool(body)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp) //nolint:errcheck
		return ParseXLSX(tmp, XLSXOptions{})
	case ".csv":
		return ParseCSV(body)
	case ".json":
		return ParseJSON(body)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q in %s", ext(rawURL), rawURL)
	}
}

func ext(source string) string {
	base := source
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return strings.ToLower(filepath.Ext(base))
}

func spool(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "dsx-ingest-*.xlsx")
	if err != nil {
		return "", eris.Wrap(err, "ingest: create temp file")
	}
	defer tmp.Close() //nolint:errcheck
	if _, err := io.Copy(tmp, r); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "ingest: spool download")
	}
	return tmp.Name(), nil
}
