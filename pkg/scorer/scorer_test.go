package scorer

import (
	"testing"

	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"github.com/stretchr/testify/require"
)

func testPlan(t *testing.T) *spec.Plan {
	t.Helper()
	s := &spec.Spec{
		Entity:          "person",
		IdentityVersion: "1.0.0",
		Sources:         []spec.Source{{Name: "crm", Attributes: map[string]string{"email": "email", "name": "name"}}},
		Blocking:        []spec.BlockingKey{{Attributes: []string{"email"}}},
		Rules: []spec.Rule{
			{Field: "email", Comparator: spec.ComparatorEmail, Weight: 0.7},
			{Field: "name", Comparator: spec.ComparatorName, Weight: 0.3},
		},
		Decision: spec.Decision{Match: 0.85, Review: 0.5, Reject: 0.0},
		Scoring:  spec.Scoring{Type: spec.ScoringWeightedSum},
		Survivorship: spec.Survivorship{
			Fields:         map[string]string{"email": spec.SurvivorNonNull},
			SourcePriority: []string{"crm"},
		},
	}
	plan, err := spec.Compile(s)
	require.NoError(t, err)
	return plan
}

func rec(email, name string) *record.NormalizedRecord {
	return &record.NormalizedRecord{ID: record.NewID(), Data: map[string]string{"email": email, "name": name}}
}

func TestWeightedSum_PerfectMatchScoresOne(t *testing.T) {
	plan := testPlan(t)
	a := rec("x@y.com", "Ann")
	b := rec("x@y.com", "Ann")
	ps, err := WeightedSum(plan, a, b)
	require.NoError(t, err)
	require.Equal(t, float64(1), ps.TotalScore)
	require.Equal(t, DecisionMatch, ps.Decision)
}

func TestWeightedSum_TotalMismatchScoresZero(t *testing.T) {
	plan := testPlan(t)
	a := rec("x@y.com", "Ann")
	b := rec("z@w.com", "Bea")
	ps, err := WeightedSum(plan, a, b)
	require.NoError(t, err)
	require.Equal(t, float64(0), ps.TotalScore)
	require.Equal(t, DecisionNoMatch, ps.Decision)
}

func TestWeightedSum_ConditionExcludesRule(t *testing.T) {
	s := &spec.Spec{
		Entity:          "person",
		IdentityVersion: "1.0.0",
		Sources:         []spec.Source{{Name: "crm", Attributes: map[string]string{"email": "email"}}},
		Blocking:        []spec.BlockingKey{{Attributes: []string{"email"}}},
		Rules: []spec.Rule{
			{Field: "email", Comparator: spec.ComparatorEmail, Weight: 1.0, Condition: `source_name_a == "never"`},
		},
		Decision:     spec.Decision{Match: 0.85, Review: 0.5, Reject: 0.0},
		Scoring:      spec.Scoring{Type: spec.ScoringWeightedSum},
		Survivorship: spec.Survivorship{Fields: map[string]string{}, SourcePriority: []string{"crm"}},
	}
	plan, err := spec.Compile(s)
	require.NoError(t, err)
	a := rec("x@y.com", "")
	b := rec("nope@nope.com", "")
	ps, err := WeightedSum(plan, a, b)
	require.NoError(t, err)
	require.Equal(t, float64(0), ps.TotalScore)
}

func TestFellegiSunter_TrainConverges(t *testing.T) {
	plan := testPlan(t)
	matches := []featureVector{
		{0: levelAgree, 1: levelAgree},
		{0: levelAgree, 1: levelAgree},
		{0: levelAgree, 1: levelPartial},
	}
	nonMatches := []featureVector{
		{0: levelDisagree, 1: levelDisagree},
		{0: levelDisagree, 1: levelPartial},
		{0: levelDisagree, 1: levelDisagree},
	}
	vectors := append(append([]featureVector{}, matches...), nonMatches...)

	init := NewFSParams(len(plan.Spec.Rules))
	result := Train(vectors, init, spec.FSConfig{MaxIterations: 100, ConvergenceDelta: 1e-6})
	require.True(t, result.Converged)

	a := rec("x@y.com", "Ann")
	b := rec("x@y.com", "Ann")
	ps, err := FellegiSunter(plan, result.Params, a, b)
	require.NoError(t, err)
	require.True(t, ps.TotalScore > 0.5, "expected high posterior for agreeing pair, got %v", ps.TotalScore)
}

func TestClassify_Monotonic(t *testing.T) {
	d := spec.Decision{Match: 0.8, Review: 0.5, Reject: 0.0}
	require.Equal(t, DecisionMatch, Classify(d, 0.9))
	require.Equal(t, DecisionReview, Classify(d, 0.6))
	require.Equal(t, DecisionNoMatch, Classify(d, 0.1))
}

func TestBlendWithFeedback_ZeroLearningRateIsNoop(t *testing.T) {
	em := NewFSParams(2)
	fb := NewFSParams(2)
	fb.Lambda = 0.9
	out := BlendWithFeedback(em, fb, spec.FeedbackCfg{LearningRate: 0})
	require.Equal(t, em.Lambda, out.Lambda)
}

func TestBlendWithFeedback_BlendsTowardFeedback(t *testing.T) {
	em := NewFSParams(2)
	em.Lambda = 0.1
	fb := NewFSParams(2)
	fb.Lambda = 0.9
	out := BlendWithFeedback(em, fb, spec.FeedbackCfg{LearningRate: 0.5})
	require.InDelta(t, 0.5, out.Lambda, 1e-9)
}

func TestWeightedSum_MissingFieldIsNeutralNotPenalized(t *testing.T) {
	plan := testPlan(t)
	a := rec("x@y.com", "Ann")
	b := rec("x@y.com", record.Missing)
	ps, err := WeightedSum(plan, a, b)
	require.NoError(t, err)
	// Only the email rule (weight 0.7) is active; it agrees, so the
	// missing-name rule must not dilute the denominator toward 0.
	require.Equal(t, float64(1), ps.TotalScore)
}

func TestToFeatureVector_MissingFieldExcludedNotDisagree(t *testing.T) {
	plan := testPlan(t)
	a := rec("x@y.com", "Ann")
	b := rec("x@y.com", record.Missing)
	perField, active, err := fieldValues(plan, a, b)
	require.NoError(t, err)
	fv := toFeatureVector(plan, perField, active)
	_, hasName := fv[1]
	require.False(t, hasName, "missing field must be excluded from the feature vector, not binned to levelDisagree")
	require.Equal(t, levelAgree, fv[0])
}

func TestEstimateU_ComputesEmpiricalDistributionAndHoldsFixed(t *testing.T) {
	vectors := []featureVector{
		{0: levelDisagree},
		{0: levelDisagree},
		{0: levelPartial},
		{0: levelAgree},
	}
	u := EstimateU(vectors, 1)
	require.InDelta(t, 0.5, u[0][levelDisagree], 1e-9)
	require.InDelta(t, 0.25, u[0][levelPartial], 1e-9)
	require.InDelta(t, 0.25, u[0][levelAgree], 1e-9)

	init := NewFSParams(1)
	init.U = u
	result := Train(vectors, init, spec.FSConfig{MaxIterations: 5, ConvergenceDelta: 1e-9})
	require.Equal(t, u, result.Params.U, "u must stay fixed across EM iterations")
}

func TestEstimateSeedLambda_ScalesByRecallTarget(t *testing.T) {
	vectors := []featureVector{
		{0: levelAgree},
		{0: levelAgree},
		{0: levelDisagree},
		{0: levelDisagree},
	}
	lambda := EstimateSeedLambda(vectors, 0, 0.5, 0.05)
	require.InDelta(t, 1.0, lambda, 1e-6) // 0.5 agreement rate / 0.5 recall target
}

func TestEstimateSeedLambda_FallsBackWhenUnconfigured(t *testing.T) {
	vectors := []featureVector{{0: levelAgree}}
	require.Equal(t, 0.05, EstimateSeedLambda(vectors, -1, 0.5, 0.05))
	require.Equal(t, 0.05, EstimateSeedLambda(vectors, 0, 0, 0.05))
}

func TestEstimateFeedbackParams_LearnsFromLabelsDirectly(t *testing.T) {
	vectors := []featureVector{
		{0: levelAgree},
		{0: levelAgree},
		{0: levelDisagree},
	}
	labels := []bool{true, true, false}
	params := EstimateFeedbackParams(vectors, labels, 1)
	require.InDelta(t, 1.0, params.M[0][levelAgree], 1e-6)
	require.InDelta(t, 1.0, params.U[0][levelDisagree], 1e-6)
	require.InDelta(t, 2.0/3.0, params.Lambda, 1e-6)
}

func TestTrainWithFixed_HonorsFixedPosteriors(t *testing.T) {
	vectors := []featureVector{
		{0: levelAgree},
		{0: levelDisagree},
	}
	fixed := map[int]float64{0: 1, 1: 0}
	init := NewFSParams(1)
	result := TrainWithFixed(vectors, fixed, init, spec.FSConfig{MaxIterations: 1, ConvergenceDelta: 1e-9})
	require.Equal(t, float64(0.5), result.Params.Lambda)
}
