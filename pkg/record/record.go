// Package record defines NormalizedRecord, the unit of data the engine
// operates on from ingest through survivorship.
package record

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Missing is the sentinel value for an absent or empty attribute.
const Missing = ""

// NormalizedRecord is a single source row remapped onto canonical
// attribute names.
type NormalizedRecord struct {
	ID          uuid.UUID         `json:"id"`
	SourceName  string            `json:"source_name"`
	ExternalID  string            `json:"external_id"`
	EntityType  string            `json:"entity_type"`
	Data        map[string]string `json:"data"`
	LastUpdated time.Time         `json:"last_updated"`
}

// NewID returns a fresh record id. Pulled out as a var so tests can swap in
// a deterministic generator without touching call sites.
var NewID = uuid.New

// SourceKey identifies a record uniquely within the source it came from.
// (source_name, external_id) must be unique within a run.
type SourceKey struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
}

func (r *NormalizedRecord) Key() SourceKey {
	return SourceKey{SourceName: r.SourceName, ExternalID: r.ExternalID}
}

// Get returns the value of a canonical attribute, or Missing if absent or
// empty. Callers must never distinguish "absent" from "empty string".
func (r *NormalizedRecord) Get(attr string) string {
	if r.Data == nil {
		return Missing
	}
	v, ok := r.Data[attr]
	if !ok {
		return Missing
	}
	return v
}

// IsMissing reports whether attr is absent or empty on r.
func (r *NormalizedRecord) IsMissing(attr string) bool {
	return r.Get(attr) == Missing
}

// SortByID returns a copy of recs sorted by id, used anywhere the engine
// needs a deterministic iteration order over the record set.
func SortByID(recs []*NormalizedRecord) []*NormalizedRecord {
	out := make([]*NormalizedRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool {
		return less(out[i].ID, out[j].ID)
	})
	return out
}

func less(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Store is the in-memory record set for a run. Records are immutable for
// the lifetime of the run once ingested.
type Store struct {
	byID  map[uuid.UUID]*NormalizedRecord
	byKey map[SourceKey]uuid.UUID
}

func NewStore() *Store {
	return &Store{
		byID:  make(map[uuid.UUID]*NormalizedRecord),
		byKey: make(map[SourceKey]uuid.UUID),
	}
}

// ErrDuplicateKey is returned by Add when (source_name, external_id) has
// already been ingested in this run.
type ErrDuplicateKey struct {
	Key SourceKey
}

func (e *ErrDuplicateKey) Error() string {
	return "record: duplicate (source_name, external_id) in run: " + e.Key.SourceName + "/" + e.Key.ExternalID
}

// Add ingests r into the store, enforcing the (source_name, external_id)
// uniqueness invariant.
func (s *Store) Add(r *NormalizedRecord) error {
	key := r.Key()
	if _, exists := s.byKey[key]; exists {
		return &ErrDuplicateKey{Key: key}
	}
	s.byID[r.ID] = r
	s.byKey[key] = r.ID
	return nil
}

func (s *Store) Get(id uuid.UUID) (*NormalizedRecord, bool) {
	r, ok := s.byID[id]
	return r, ok
}

func (s *Store) ByKey(key SourceKey) (*NormalizedRecord, bool) {
	id, ok := s.byKey[key]
	if !ok {
		return nil, false
	}
	return s.Get(id)
}

// All returns every ingested record, sorted by id for deterministic
// downstream iteration.
func (s *Store) All() []*NormalizedRecord {
	out := make([]*NormalizedRecord, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return SortByID(out)
}

func (s *Store) Len() int { return len(s.byID) }

// Merge adds every record of other into s, used when ingesting a new batch
// into the existing id-space of an incremental run.
func (s *Store) Merge(other *Store) {
	for _, r := range other.All() {
		s.byID[r.ID] = r
		s.byKey[r.Key()] = r.ID
	}
}
