package ingest

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// ParseJSON reads a JSON array of wire records.
func ParseJSON(r io.Reader) ([]model.SourceRecord, error) {
	var raw []Record
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "ingest: decode json")
	}

	out := make([]model.SourceRecord, 0, len(raw))
	for i, rec := range raw {
		m, err := rec.ToModel()
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: json element %d", i)
		}
		out = append(out, m)
	}
	return out, nil
}
