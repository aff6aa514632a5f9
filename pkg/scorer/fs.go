package scorer

import (
	"context"
	"math"
	"math/rand"

	"github.com/kanoniv/kanoniv/pkg/kerrors"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"golang.org/x/time/rate"
)

// numLevels is the fixed agreement-level granularity every rule is binned
// into for Fellegi-Sunter scoring: disagree, partial, agree.
const numLevels = 3

const (
	levelDisagree = 0
	levelPartial  = 1
	levelAgree    = 2
)

const (
	defaultPartialThreshold = 0.5
	defaultAgreeThreshold   = 0.92
)

// FSParams is the trained Fellegi-Sunter parameter set: per-rule, per-level
// m (probability of this level given a true match) and u (probability of
// this level given a non-match), plus the match prior lambda.
type FSParams struct {
	M      [][numLevels]float64
	U      [][numLevels]float64
	Lambda float64
}

// NewFSParams allocates a parameter set with a neutral starting point: m
// biased toward agreement, u biased toward disagreement, so EM has a
// sensible basin to climb from.
func NewFSParams(numRules int) *FSParams {
	p := &FSParams{
		M:      make([][numLevels]float64, numRules),
		U:      make([][numLevels]float64, numRules),
		Lambda: 0.05,
	}
	for i := 0; i < numRules; i++ {
		p.M[i] = [numLevels]float64{0.05, 0.15, 0.80}
		p.U[i] = [numLevels]float64{0.80, 0.15, 0.05}
	}
	return p
}

// level bins a raw comparator score into one of numLevels using the rule's
// configured thresholds, falling back to the package defaults.
func level(rule spec.Rule, score float64) int {
	partial, agree := defaultPartialThreshold, defaultAgreeThreshold
	if v, ok := rule.Thresholds["partial"]; ok {
		partial = v
	}
	if v, ok := rule.Thresholds["agree"]; ok {
		agree = v
	}
	switch {
	case score >= agree:
		return levelAgree
	case score >= partial:
		return levelPartial
	default:
		return levelDisagree
	}
}

// featureVector is one pair's levels, keyed by the index of every rule
// whose condition was active and whose field was present on both sides of
// the pair. A missing field has no entry at all, so it never contributes
// log(m/u) evidence either way — distinct from a genuine disagreement,
// which bins to levelDisagree.
type featureVector map[int]int

func toFeatureVector(plan *spec.Plan, perField map[string]float64, active []int) featureVector {
	fv := make(featureVector, len(active))
	for _, i := range active {
		rule := plan.Spec.Rules[i]
		fv[i] = level(rule, perField[rule.Field])
	}
	return fv
}

// TrainResult reports the outcome of one EM training run.
type TrainResult struct {
	Params     *FSParams
	Converged  bool
	Iterations int
	MaxDelta   float64
}

// Train runs expectation-maximization over the given feature vectors
// starting from init, stopping once the largest single parameter delta
// falls below cfg.ConvergenceDelta or cfg.MaxIterations is reached.
//
// U is held fixed at init.U throughout: only M and Lambda are re-estimated
// each iteration. u is meant to come from a random sample's empirical
// level distribution (see EstimateU), not from EM itself — random pairs
// are overwhelmingly non-matches, which is exactly the distribution u is
// defined over.
//
// Train never returns an error for non-convergence: it always returns its
// best-so-far parameters. Callers that want to degrade gracefully should
// check Converged and surface *kerrors.TrainingError themselves (see
// TrainOrDegrade).
func Train(vectors []featureVector, init *FSParams, cfg spec.FSConfig) TrainResult {
	return trainEM(vectors, nil, init, cfg)
}

// TrainWithFixed runs the same EM loop as Train, except every vector index
// present in fixed has its E-step posterior forced to that value instead
// of computed from the model. This is how a labeled pair (a,b,match) or
// (a,b,no_match) participates in training: its assignment is known, not
// inferred, so it contributes a fixed soft assignment every iteration
// rather than one the model could talk itself out of.
func TrainWithFixed(vectors []featureVector, fixed map[int]float64, init *FSParams, cfg spec.FSConfig) TrainResult {
	return trainEM(vectors, fixed, init, cfg)
}

func trainEM(vectors []featureVector, fixed map[int]float64, init *FSParams, cfg spec.FSConfig) TrainResult {
	numRules := len(init.M)
	params := cloneParams(init)

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 50
	}
	delta := cfg.ConvergenceDelta
	if delta <= 0 {
		delta = 1e-4
	}

	var lastDelta float64
	iter := 0
	for ; iter < maxIter; iter++ {
		posteriors := make([]float64, len(vectors))
		for pi, fv := range vectors {
			if p, ok := fixed[pi]; ok {
				posteriors[pi] = p
				continue
			}
			posteriors[pi] = posterior(fv, params)
		}

		next := &FSParams{M: make([][numLevels]float64, numRules), U: params.U}
		var sumPost float64

		type accum struct{ mNum, mDen [numLevels]float64 }
		accums := make([]accum, numRules)

		for pi, fv := range vectors {
			p := posteriors[pi]
			sumPost += p
			for ruleIdx, lvl := range fv {
				accums[ruleIdx].mNum[lvl] += p
				for l := 0; l < numLevels; l++ {
					accums[ruleIdx].mDen[l] += p
				}
			}
		}

		for i := 0; i < numRules; i++ {
			for l := 0; l < numLevels; l++ {
				next.M[i][l] = safeDiv(accums[i].mNum[l], accums[i].mDen[l], params.M[i][l])
			}
		}
		if len(vectors) > 0 {
			next.Lambda = sumPost / float64(len(vectors))
		} else {
			next.Lambda = params.Lambda
		}

		lastDelta = maxParamDelta(params, next)
		params = next
		if lastDelta < delta {
			iter++
			break
		}
	}

	return TrainResult{Params: params, Converged: lastDelta < delta, Iterations: iter, MaxDelta: lastDelta}
}

// EstimateFeedbackParams computes m/u/lambda directly from a labeled set —
// a maximum-likelihood estimate conditioned on the known label, rather
// than a posterior inferred by EM. Used as the "feedback" side of
// BlendWithFeedback, distinct from (and typically a smaller sample than)
// the EM-trained params. Rules with no observations under a label keep
// the neutral NewFSParams default for it.
func EstimateFeedbackParams(vectors []featureVector, labels []bool, numRules int) *FSParams {
	out := NewFSParams(numRules)
	type accum struct{ num, den [numLevels]float64 }
	mAcc := make([]accum, numRules)
	uAcc := make([]accum, numRules)
	var matchCount, total float64
	for i, fv := range vectors {
		if i >= len(labels) {
			continue
		}
		total++
		acc := uAcc
		if labels[i] {
			matchCount++
			acc = mAcc
		}
		for ruleIdx, lvl := range fv {
			if ruleIdx < 0 || ruleIdx >= numRules {
				continue
			}
			acc[ruleIdx].num[lvl]++
			for l := 0; l < numLevels; l++ {
				acc[ruleIdx].den[l]++
			}
		}
	}
	for i := 0; i < numRules; i++ {
		for l := 0; l < numLevels; l++ {
			out.M[i][l] = safeDiv(mAcc[i].num[l], mAcc[i].den[l], out.M[i][l])
			out.U[i][l] = safeDiv(uAcc[i].num[l], uAcc[i].den[l], out.U[i][l])
		}
	}
	if total > 0 {
		out.Lambda = clampProb(matchCount / total)
	}
	return out
}

// EstimateU computes the empirical per-rule, per-level distribution from a
// set of feature vectors drawn from uniformly-random record pairs. Random
// pairs are presumed non-matches, so their level distribution is the
// direct empirical estimate of u — it is computed once and held fixed
// through EM rather than re-estimated from the posterior (see Train).
// Rules with no observations fall back to NewFSParams's neutral default.
func EstimateU(vectors []featureVector, numRules int) [][numLevels]float64 {
	fallback := NewFSParams(numRules).U
	counts := make([][numLevels]float64, numRules)
	totals := make([]float64, numRules)
	for _, fv := range vectors {
		for ruleIdx, lvl := range fv {
			if ruleIdx < 0 || ruleIdx >= numRules {
				continue
			}
			counts[ruleIdx][lvl]++
			totals[ruleIdx]++
		}
	}
	out := make([][numLevels]float64, numRules)
	for i := 0; i < numRules; i++ {
		if totals[i] == 0 {
			out[i] = fallback[i]
			continue
		}
		for l := 0; l < numLevels; l++ {
			out[i][l] = clampProb(counts[i][l] / totals[i])
		}
	}
	return out
}

// EstimateSeedLambda estimates an initial match prior from a seed blocking
// rule's observed agreement rate among candidate vectors and its expected
// recall target: if the rule agrees on fraction f of candidate pairs and
// is assumed to catch recallTarget of all true matches at that level, the
// match prior is approximately f / recallTarget. Falls back to fallback
// when the rule index is out of range, recallTarget is non-positive, or
// there is no data.
func EstimateSeedLambda(vectors []featureVector, seedRuleIdx int, recallTarget, fallback float64) float64 {
	if seedRuleIdx < 0 || recallTarget <= 0 || len(vectors) == 0 {
		return fallback
	}
	var agree, observed float64
	for _, fv := range vectors {
		lvl, ok := fv[seedRuleIdx]
		if !ok {
			continue
		}
		observed++
		if lvl == levelAgree {
			agree++
		}
	}
	if observed == 0 {
		return fallback
	}
	lambda := (agree / observed) / recallTarget
	return clampProb(lambda)
}

func posterior(fv featureVector, p *FSParams) float64 {
	logM, logU := math.Log(p.Lambda), math.Log(1-p.Lambda)
	for ruleIdx, lvl := range fv {
		logM += math.Log(clampProb(p.M[ruleIdx][lvl]))
		logU += math.Log(clampProb(p.U[ruleIdx][lvl]))
	}
	// posterior = exp(logM) / (exp(logM) + exp(logU)), computed stably.
	if logM > logU {
		return 1 / (1 + math.Exp(logU-logM))
	}
	return math.Exp(logM-logU) / (1 + math.Exp(logM-logU))
}

func clampProb(v float64) float64 {
	const eps = 1e-6
	if v < eps {
		return eps
	}
	if v > 1-eps {
		return 1 - eps
	}
	return v
}

func safeDiv(num, den, fallback float64) float64 {
	if den <= 0 {
		return fallback
	}
	return clampProb(num / den)
}

func cloneParams(p *FSParams) *FSParams {
	out := &FSParams{M: make([][numLevels]float64, len(p.M)), U: make([][numLevels]float64, len(p.U)), Lambda: p.Lambda}
	copy(out.M, p.M)
	copy(out.U, p.U)
	return out
}

func maxParamDelta(a, b *FSParams) float64 {
	maxD := math.Abs(a.Lambda - b.Lambda)
	for i := range a.M {
		for l := 0; l < numLevels; l++ {
			if d := math.Abs(a.M[i][l] - b.M[i][l]); d > maxD {
				maxD = d
			}
			if d := math.Abs(a.U[i][l] - b.U[i][l]); d > maxD {
				maxD = d
			}
		}
	}
	return maxD
}

// score converts a pair's trained posterior into a [0,1] total score
// comparable against the spec's decision thresholds.
func (p *FSParams) score(fv featureVector) float64 {
	return posterior(fv, p)
}

// SampleRandomPairs draws n uniformly-random distinct-index pairs from recs
// for u-probability estimation, paced by limiter so sampling a very large
// record set doesn't spike CPU. The sample is deterministic given cfg.Seed.
func SampleRandomPairs(ctx context.Context, recs []*record.NormalizedRecord, n int, cfg spec.FSConfig, limiter *rate.Limiter) ([]record.SourceKey, []record.SourceKey, error) {
	if len(recs) < 2 || n <= 0 {
		return nil, nil, nil
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	as := make([]record.SourceKey, 0, n)
	bs := make([]record.SourceKey, 0, n)
	for i := 0; i < n; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return as, bs, err
			}
		}
		ia := rng.Intn(len(recs))
		ib := rng.Intn(len(recs) - 1)
		if ib >= ia {
			ib++
		}
		as = append(as, recs[ia].Key())
		bs = append(bs, recs[ib].Key())
	}
	return as, bs, nil
}

// FellegiSunter scores one pair using already-trained params, applying
// condition gating and overrides exactly as WeightedSum does.
func FellegiSunter(plan *spec.Plan, params *FSParams, a, b *record.NormalizedRecord) (PairScore, error) {
	perField, active, err := fieldValues(plan, a, b)
	if err != nil {
		return PairScore{}, err
	}
	fv := toFeatureVector(plan, perField, active)
	total := params.score(fv)

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

// TrainOrDegrade runs Train and, on non-convergence, returns the best-so-far
// parameters alongside a *kerrors.TrainingError rather than failing the
// run outright.
func TrainOrDegrade(vectors []featureVector, init *FSParams, cfg spec.FSConfig) (*FSParams, error) {
	result := Train(vectors, init, cfg)
	if !result.Converged {
		return result.Params, &kerrors.TrainingError{Iterations: result.Iterations, MaxDelta: result.MaxDelta}
	}
	return result.Params, nil
}

// BuildFeatureVectors is exported so callers (the reconcile orchestrator)
// can prepare EM training input from a candidate pair set without
// duplicating the condition-gating and binning logic.
func BuildFeatureVectors(plan *spec.Plan, store *record.Store, pairs [][2]record.SourceKey) []featureVector {
	vectors := make([]featureVector, 0, len(pairs))
	for _, pr := range pairs {
		a, okA := store.ByKey(pr[0])
		b, okB := store.ByKey(pr[1])
		if !okA || !okB {
			continue
		}
		perField, active, err := fieldValues(plan, a, b)
		if err != nil {
			continue
		}
		vectors = append(vectors, toFeatureVector(plan, perField, active))
	}
	return vectors
}

// BlendWithFeedback blends EM-estimated parameters with supervised
// feedback-derived parameters, weighted by cfg.LearningRate.
func BlendWithFeedback(em, feedback *FSParams, cfg spec.FeedbackCfg) *FSParams {
	lr := cfg.LearningRate
	if lr <= 0 {
		return em
	}
	if lr > 1 {
		lr = 1
	}
	out := cloneParams(em)
	for i := range out.M {
		if i >= len(feedback.M) {
			continue
		}
		for l := 0; l < numLevels; l++ {
			out.M[i][l] = (1-lr)*em.M[i][l] + lr*feedback.M[i][l]
			out.U[i][l] = (1-lr)*em.U[i][l] + lr*feedback.U[i][l]
		}
	}
	out.Lambda = (1-lr)*em.Lambda + lr*feedback.Lambda
	return out
}
