// Package survivor computes the golden record for a cluster: a winning
// value per field plus a stable kanoniv_id
package survivor

import (
	"encoding/hex"
	"sort"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/canonicalize"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"golang.org/x/crypto/blake2b"
)

// FieldProvenance records which member record contributed the surviving
// value for one field.
type FieldProvenance struct {
	Value    string
	SourceID uuid.UUID
}

// GoldenRecord is the survivorship output for one cluster.
type GoldenRecord struct {
	KanonivID string
	Members   []uuid.UUID
	Fields    map[string]FieldProvenance
}

// Resolve computes the golden record for a cluster of member records using
// the spec's per-field survivorship strategies. members must
// be non-empty; the caller is expected to have already sorted it (e.g. via
// record.SortByID) for determinism, but Resolve re-sorts defensively.
func Resolve(s spec.Survivorship, members []*record.NormalizedRecord) GoldenRecord {
	sorted := record.SortByID(members)

	fieldNames := allFields(sorted)
	fields := make(map[string]FieldProvenance, len(fieldNames))
	for _, field := range fieldNames {
		strategy := s.Fields[field]
		fields[field] = pickWinner(strategy, s.SourcePriority, field, sorted)
	}

	ids := make([]uuid.UUID, len(sorted))
	for i, m := range sorted {
		ids[i] = m.ID
	}

	return GoldenRecord{
		KanonivID: kanonivID(sorted),
		Members:   ids,
		Fields:    fields,
	}
}

func allFields(members []*record.NormalizedRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range members {
		for f := range m.Data {
			if !seen[f] {
				seen[f] = true
				names = append(names, f)
			}
		}
	}
	sort.Strings(names)
	return names
}

func pickWinner(strategy string, sourcePriority []string, field string, members []*record.NormalizedRecord) FieldProvenance {
	nonMissing := make([]*record.NormalizedRecord, 0, len(members))
	for _, m := range members {
		if !m.IsMissing(field) {
			nonMissing = append(nonMissing, m)
		}
	}
	if len(nonMissing) == 0 {
		return FieldProvenance{Value: record.Missing}
	}

	switch strategy {
	case spec.SurvivorSourcePriority:
		return bySourcePriority(sourcePriority, field, nonMissing)
	case spec.SurvivorMostRecent:
		return byMostRecent(field, nonMissing)
	case spec.SurvivorLongest:
		return byLongest(field, nonMissing)
	case spec.SurvivorMode:
		return byMode(field, nonMissing)
	case spec.SurvivorNonNull:
		fallthrough
	default:
		// non_null (and the zero-value default) takes the first non-missing
		// value in deterministic (sorted-by-id) order.
		return FieldProvenance{Value: nonMissing[0].Get(field), SourceID: nonMissing[0].ID}
	}
}

func bySourcePriority(sourcePriority []string, field string, members []*record.NormalizedRecord) FieldProvenance {
	rank := make(map[string]int, len(sourcePriority))
	for i, name := range sourcePriority {
		rank[name] = i
	}
	best := members[0]
	bestRank := rankOf(rank, best.SourceName)
	for _, m := range members[1:] {
		r := rankOf(rank, m.SourceName)
		if r < bestRank {
			best, bestRank = m, r
		}
	}
	return FieldProvenance{Value: best.Get(field), SourceID: best.ID}
}

func rankOf(rank map[string]int, sourceName string) int {
	if r, ok := rank[sourceName]; ok {
		return r
	}
	return len(rank) // unlisted sources rank lowest
}

func byMostRecent(field string, members []*record.NormalizedRecord) FieldProvenance {
	best := members[0]
	for _, m := range members[1:] {
		if m.LastUpdated.After(best.LastUpdated) {
			best = m
		}
	}
	return FieldProvenance{Value: best.Get(field), SourceID: best.ID}
}

func byLongest(field string, members []*record.NormalizedRecord) FieldProvenance {
	best := members[0]
	for _, m := range members[1:] {
		if len(m.Get(field)) > len(best.Get(field)) {
			best = m
		}
	}
	return FieldProvenance{Value: best.Get(field), SourceID: best.ID}
}

func byMode(field string, members []*record.NormalizedRecord) FieldProvenance {
	counts := make(map[string]int)
	for _, m := range members {
		counts[m.Get(field)]++
	}
	best := members[0]
	bestCount := 0
	for _, m := range members {
		c := counts[m.Get(field)]
		if c > bestCount {
			best, bestCount = m, c
		}
	}
	return FieldProvenance{Value: best.Get(field), SourceID: best.ID}
}

// kanonivID derives a stable cluster identifier from the "kanoniv-v1"
// prefix followed by the canonicalized, sorted set of member
// (source_name, external_id) tuples, hashed with BLAKE2b-256 and truncated
// to 32 hex characters.
//
// BLAKE2b is used here specifically so the golden-record id space never
// collides with a plan hash, which uses SHA-256.
func kanonivID(members []*record.NormalizedRecord) string {
	type tuple struct {
		Source     string `json:"source"`
		ExternalID string `json:"external_id"`
	}
	tuples := make([]tuple, len(members))
	for i, m := range members {
		tuples[i] = tuple{Source: m.SourceName, ExternalID: m.ExternalID}
	}
	sort.Slice(tuples, func(i, j int) bool {
		if tuples[i].Source != tuples[j].Source {
			return tuples[i].Source < tuples[j].Source
		}
		return tuples[i].ExternalID < tuples[j].ExternalID
	})

	canon, err := canonicalize.JCS(tuples)
	if err != nil {
		canon = []byte{}
	}
	sum := blake2b.Sum256(append([]byte("kanoniv-v1"), canon...))
	return hex.EncodeToString(sum[:])[:32]
}
