// Package scorer turns a candidate pair into a decision: weighted_sum for
// the simple case, or Fellegi-Sunter with EM-trained parameters for the
// probabilistic case.
package scorer

import (
	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/comparator"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
)

// Decision is the outcome recorded for one scored pair.
type Decision string

const (
	DecisionMatch   Decision = "match"
	DecisionReview  Decision = "review"
	DecisionNoMatch Decision = "no_match"
)

// PairScore is the scored outcome for one candidate pair.
type PairScore struct {
	A, B uuid.UUID

	// PerField holds each rule's raw comparator output, keyed by field, for
	// override evaluation and diagnostics.
	PerField map[string]float64

	TotalScore float64
	Decision   Decision

	// Overridden is true if a CEL override forced NoMatch regardless of
	// TotalScore.
	Overridden bool
}

// Classify maps a total score onto one of the three decision tiers using
// the spec's monotonic thresholds (reject <= review <= match).
func Classify(d spec.Decision, score float64) Decision {
	switch {
	case score >= d.Match:
		return DecisionMatch
	case score >= d.Review:
		return DecisionReview
	default:
		return DecisionNoMatch
	}
}

// fieldValues evaluates every rule's comparator for the pair, skipping any
// rule whose condition evaluates false for this pair, and any rule whose
// field is missing on either side. A missing field contributes to neither
// score nor weight: it is neutral, never a disagreement. It returns
// per-field comparator scores plus the subset of rule indices that were
// actually evaluated.
func fieldValues(plan *spec.Plan, a, b *record.NormalizedRecord) (map[string]float64, []int, error) {
	perField := make(map[string]float64, len(plan.Spec.Rules))
	var active []int
	for i, rule := range plan.Spec.Rules {
		ok, err := plan.EvalCondition(i, a.EntityType, a.SourceName, b.SourceName)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if a.IsMissing(rule.Field) || b.IsMissing(rule.Field) {
			continue
		}
		perField[rule.Field] = comparator.Compare(rule.Comparator, a.Get(rule.Field), b.Get(rule.Field))
		active = append(active, i)
	}
	return perField, active, nil
}

// applyOverrides runs the plan's compiled override expressions. A firing
// override forces NoMatch — overrides are a forbid-merge mechanism, never
// a way to force an otherwise-unearned match.
func applyOverrides(plan *spec.Plan, perField map[string]float64, total float64, decision Decision) (Decision, bool, error) {
	if len(plan.Overrides) == 0 {
		return decision, false, nil
	}
	fired, err := plan.EvalOverrides(perField, total)
	if err != nil {
		return decision, false, err
	}
	if fired {
		return DecisionNoMatch, true, nil
	}
	return decision, false, nil
}
