package scorer

import (
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
)

// WeightedSum scores a pair as the weight-normalized average of each
// active rule's comparator output.
//
// A rule gated off by its condition, or whose field is missing on either
// side, is excluded from both the numerator and denominator — missing data
// is neutral, never a penalty — so a pair for which no rule applies scores
// 0 rather than dividing by zero.
func WeightedSum(plan *spec.Plan, a, b *record.NormalizedRecord) (PairScore, error) {
	perField, active, err := fieldValues(plan, a, b)
	if err != nil {
		return PairScore{}, err
	}

	var weightedSum, weightTotal float64
	for _, i := range active {
		rule := plan.Spec.Rules[i]
		weightedSum += rule.Weight * perField[rule.Field]
		weightTotal += rule.Weight
	}

	var total float64
	if weightTotal > 0 {
		total = weightedSum / weightTotal
	}

	decision := Classify(plan.Spec.Decision, total)
	decision, overridden, err := applyOverrides(plan, perField, total, decision)
	if err != nil {
		return PairScore{}, err
	}

	return PairScore{
		A: a.ID, B: b.ID,
		PerField:   perField,
		TotalScore: total,
		Decision:   decision,
		Overridden: overridden,
	}, nil
}
