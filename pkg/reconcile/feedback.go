package reconcile

import (
	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/scorer"
)

// FeedbackLabel is a reviewer's adjudication of one candidate pair.
type FeedbackLabel string

const (
	LabelMatch   FeedbackLabel = "match"
	LabelNoMatch FeedbackLabel = "no_match"
)

// FeedbackPair is one supervised judgment: a human reviewer has decided
// whether the records identified by A and B are the same entity. Pairs are
// keyed by SourceKey rather than id, since record ids are regenerated on
// every ingest but (source_name, external_id) is stable across runs — the
// same shape a Snapshot uses to survive a run boundary.
type FeedbackPair struct {
	A, B  record.SourceKey `json:"-"`
	Label FeedbackLabel    `json:"label"`
}

// resolvedFeedback is a FeedbackPair with its SourceKeys looked up against
// this run's store. Pairs naming a record absent from the run are dropped.
type resolvedFeedback struct {
	a, b  *record.NormalizedRecord
	label FeedbackLabel
}

func resolveFeedback(store *record.Store, feedback []FeedbackPair) []resolvedFeedback {
	out := make([]resolvedFeedback, 0, len(feedback))
	for _, f := range feedback {
		a, okA := store.ByKey(f.A)
		b, okB := store.ByKey(f.B)
		if !okA || !okB {
			continue
		}
		out = append(out, resolvedFeedback{a: a, b: b, label: f.Label})
	}
	return out
}

// forbidAndForceEdges splits resolved feedback into cluster-level
// constraints: a no_match label forbids cluster.Build from ever merging
// the pair (directly or transitively); a match label forces a merge by
// synthesizing a maximal-score match edge, the same technique
// RunIncremental already uses to seed prior cluster membership.
func forbidAndForceEdges(resolved []resolvedFeedback) (forbid [][2]uuid.UUID, force []scorer.PairScore) {
	for _, r := range resolved {
		switch r.label {
		case LabelNoMatch:
			forbid = append(forbid, [2]uuid.UUID{r.a.ID, r.b.ID})
		case LabelMatch:
			force = append(force, scorer.PairScore{A: r.a.ID, B: r.b.ID, TotalScore: 1, Decision: scorer.DecisionMatch})
		}
	}
	return forbid, force
}

// feedbackTrainingInputs splits resolved feedback into the SourceKey pairs
// scorer.BuildFeatureVectors needs and the parallel boolean match labels
// (true for match, false for no_match) scorer.EstimateFeedbackParams and
// scorer.TrainWithFixed's fixed posteriors are built from.
func feedbackTrainingInputs(resolved []resolvedFeedback) ([]record.SourceKey, []record.SourceKey, []bool) {
	as := make([]record.SourceKey, 0, len(resolved))
	bs := make([]record.SourceKey, 0, len(resolved))
	labels := make([]bool, 0, len(resolved))
	for _, r := range resolved {
		as = append(as, r.a.Key())
		bs = append(bs, r.b.Key())
		labels = append(labels, r.label == LabelMatch)
	}
	return as, bs, labels
}
