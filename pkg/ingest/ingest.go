// Package ingest maps raw source rows onto NormalizedRecord. It is purely
// functional: it never calls back into the engine.
package ingest

import (
	"strings"
	"time"

	"github.com/kanoniv/kanoniv/pkg/kerrors"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
)

// Row is one raw source row: stringified column name -> value, plus the
// fields the adapter is expected to supply out-of-band.
type Row struct {
	ExternalID  string
	LastUpdated time.Time
	Columns     map[string]string
}

// ValidateSchema checks that every source column the spec declares for src
// is actually present in columns (case-insensitive). It returns
// *kerrors.SourceSchemaMismatch for the first missing column — a structural
// problem distinct from a per-row IngestError.
func ValidateSchema(src spec.Source, columns []string) error {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[strings.ToLower(c)] = true
	}
	for _, column := range src.Attributes {
		if !present[strings.ToLower(column)] {
			return &kerrors.SourceSchemaMismatch{Source: src.Name, Column: column}
		}
	}
	return nil
}

// Source ingests rows for one configured spec.Source into recs, applying
// case-insensitive column matching and the canonical-attribute rewrite
//. Callers should run ValidateSchema first; Source
// itself only handles per-row failures.
//
// A row whose required columns are entirely absent is non-fatal: it is
// dropped and reported as an IngestError at its index. Only if every row in
// the batch fails does Source return an error.
func Source(src spec.Source, entityType string, rows []Row) ([]*record.NormalizedRecord, []*kerrors.IngestError, error) {
	lowerToCanonical := buildLowerIndex(src.Attributes)

	var out []*record.NormalizedRecord
	var failures []*kerrors.IngestError

	for i, row := range rows {
		rec, err := ingestRow(src, entityType, row, lowerToCanonical)
		if err != nil {
			failures = append(failures, &kerrors.IngestError{RowIndex: i, Err: err})
			continue
		}
		out = append(out, rec)
	}

	if len(rows) > 0 && len(out) == 0 {
		return nil, failures, &kerrors.IngestError{RowIndex: -1, Err: errAllRowsFailed}
	}

	return out, failures, nil
}

var errAllRowsFailed = ingestAllFailed("every row in the batch failed to ingest")

var errNoMappedColumns = ingestAllFailed("row has none of the source's mapped columns")

type ingestAllFailed string

func (e ingestAllFailed) Error() string { return string(e) }

// lowerIndex maps a lower-cased source column name to its canonical
// attribute name.
type lowerIndex map[string]string

func buildLowerIndex(attrs map[string]string) lowerIndex {
	idx := make(lowerIndex, len(attrs))
	for canonical, column := range attrs {
		idx[strings.ToLower(column)] = canonical
	}
	return idx
}

func ingestRow(src spec.Source, entityType string, row Row, idx lowerIndex) (*record.NormalizedRecord, error) {
	data := make(map[string]string, len(idx))
	matched := 0
	for col, val := range row.Columns {
		canonical, ok := idx[strings.ToLower(col)]
		if !ok {
			continue // unmapped columns are dropped
		}
		matched++
		if val == "" {
			data[canonical] = record.Missing
			continue
		}
		data[canonical] = val
	}
	if matched == 0 && len(idx) > 0 {
		return nil, errNoMappedColumns
	}

	for canonical := range src.Attributes {
		if _, ok := data[canonical]; !ok {
			data[canonical] = record.Missing
		}
	}

	return &record.NormalizedRecord{
		ID:          record.NewID(),
		SourceName:  src.Name,
		ExternalID:  row.ExternalID,
		EntityType:  entityType,
		Data:        data,
		LastUpdated: row.LastUpdated,
	}, nil
}
