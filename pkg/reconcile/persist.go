package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/survivor"
)

// Snapshot is the round-trippable on-disk form of a Result, written as
// ".knv" JSON. It keeps records, clusters, golden records, FS params and
// feedback, and drops pair scores and metrics. It carries enough to
// resume an incremental run without re-deriving anything from Result's
// richer in-memory types (cluster.Result holds raw union-find output that
// isn't itself meaningful across runs; Snapshot only keeps what the next
// run actually needs).
type Snapshot struct {
	SpecHash string                           `json:"spec_hash"`
	Records  []*record.NormalizedRecord       `json:"records"`
	Clusters map[string][]uuid.UUID           `json:"clusters"` // cluster root id (string) -> member ids
	Golden   map[string]survivor.GoldenRecord `json:"golden"`   // cluster root id -> golden record
	FSParams *FSParamsDTO                     `json:"fs_params,omitempty"`
	Feedback []FeedbackPairDTO                `json:"feedback,omitempty"`
}

// FeedbackPairDTO is the JSON-friendly form of FeedbackPair: the in-memory
// type embeds record.SourceKey on A/B directly but tags them "-" so they
// don't round-trip ambiguously against Records; the DTO spells them out
// under "a"/"b" instead.
type FeedbackPairDTO struct {
	A     record.SourceKey `json:"a"`
	B     record.SourceKey `json:"b"`
	Label FeedbackLabel    `json:"label"`
}

// FSParamsDTO is the JSON-friendly form of scorer.FSParams (arrays, not the
// fixed-size [3]float64 the in-memory type uses, for forward compatibility
// if numLevels ever changes).
type FSParamsDTO struct {
	M      [][]float64 `json:"m"`
	U      [][]float64 `json:"u"`
	Lambda float64     `json:"lambda"`
}

// Marshal produces the .knv JSON bytes for res, including every record in
// store so the snapshot is self-contained enough to resume an incremental
// run from.
func Marshal(res *Result, store *record.Store) ([]byte, error) {
	snap := Snapshot{
		SpecHash: res.SpecHash,
		Records:  store.All(),
		Clusters: make(map[string][]uuid.UUID, len(res.Clusters.Clusters)),
		Golden:   make(map[string]survivor.GoldenRecord, len(res.Golden)),
	}
	for root, members := range res.Clusters.Clusters {
		snap.Clusters[root.String()] = members
	}
	for root, gr := range res.Golden {
		snap.Golden[root.String()] = gr
	}
	if res.FSParams != nil {
		dto := &FSParamsDTO{Lambda: res.FSParams.Lambda}
		for _, row := range res.FSParams.M {
			dto.M = append(dto.M, append([]float64{}, row[:]...))
		}
		for _, row := range res.FSParams.U {
			dto.U = append(dto.U, append([]float64{}, row[:]...))
		}
		snap.FSParams = dto
	}
	for _, f := range res.Feedback {
		snap.Feedback = append(snap.Feedback, FeedbackPairDTO{A: f.A, B: f.B, Label: f.Label})
	}

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("reconcile: marshal snapshot: %w", err)
	}
	return out, nil
}

// Unmarshal parses .knv JSON bytes back into a Snapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("reconcile: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// FeedbackPairs converts the snapshot's persisted labels back into
// FeedbackPairs, so an incremental run can re-apply the same forbid/force
// merge constraints and EM bias a prior run established.
func (s *Snapshot) FeedbackPairs() []FeedbackPair {
	out := make([]FeedbackPair, 0, len(s.Feedback))
	for _, f := range s.Feedback {
		out = append(out, FeedbackPair{A: f.A, B: f.B, Label: f.Label})
	}
	return out
}
