// Package reconcile orchestrates the full A-H pipeline: block, compare,
// score, cluster, survive, evaluate — and the incremental variant that
// extends a prior run instead of starting over.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/blocker"
	"github.com/kanoniv/kanoniv/pkg/cluster"
	"github.com/kanoniv/kanoniv/pkg/engineconfig"
	"github.com/kanoniv/kanoniv/pkg/evaluate"
	"github.com/kanoniv/kanoniv/pkg/kerrors"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/scorer"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"github.com/kanoniv/kanoniv/pkg/survivor"
	"github.com/kanoniv/kanoniv/pkg/workerpool"
	"golang.org/x/time/rate"
)

// Result is everything one full run produces.
type Result struct {
	SpecHash        string
	Scores          []scorer.PairScore
	Clusters        cluster.Result
	Golden          map[uuid.UUID]survivor.GoldenRecord // keyed by cluster root id
	Structural      evaluate.Structural
	BlockStats      blocker.Result
	BlockingSummary evaluate.BlockingStability
	FSParams        *scorer.FSParams // nil when Scoring.Type is weighted_sum
	EMHealth        []string         // e.g. "em_did_not_converge"
	Feedback        []FeedbackPair   // supervised labels active for this run
}

// Run executes the full pipeline over store using plan, from blocking
// through survivorship and structural evaluation. feedback is the set of
// supervised labeled pairs available for this run (nil if none): match
// labels force a merge, no_match labels forbid one, and both bias
// Fellegi-Sunter training when Scoring.Type is fellegi_sunter.
func Run(ctx context.Context, plan *spec.Plan, store *record.Store, cfg *engineconfig.Config, feedback []FeedbackPair) (*Result, error) {
	if cfg == nil {
		cfg = engineconfig.Default()
	}
	logger := slog.Default().With("component", "reconcile", "spec_hash", plan.Hash)

	recs := store.All()
	blockRes := blocker.Generate(plan.Spec.Blocking, recs)
	if blockRes.SkewWarning {
		logger.Warn("blocking key skew detected", "largest_group", blockRes.Groups[0].Size)
	}

	select {
	case <-ctx.Done():
		return nil, &kerrors.Cancelled{Stage: "blocking"}
	default:
	}

	resolved := resolveFeedback(store, feedback)

	var fsParams *scorer.FSParams
	var emHealth []string
	if plan.Spec.Scoring.Type == spec.ScoringFellegiSunter {
		var err error
		fsParams, emHealth, err = trainFS(ctx, plan, store, cfg, blockRes, resolved)
		if err != nil {
			return nil, err
		}
	}

	type pairKeys struct{ a, b uuid.UUID }
	pairItems := make([]pairKeys, len(blockRes.Pairs))
	for i, p := range blockRes.Pairs {
		pairItems[i] = pairKeys{a: p.A, b: p.B}
	}

	scores, err := workerpool.Run(ctx, "scoring", cfg.Workers, pairItems, func(_ context.Context, _ int, pk pairKeys) (scorer.PairScore, error) {
		a, _ := store.Get(pk.a)
		b, _ := store.Get(pk.b)
		if plan.Spec.Scoring.Type == spec.ScoringFellegiSunter {
			return scorer.FellegiSunter(plan, fsParams, a, b)
		}
		return scorer.WeightedSum(plan, a, b)
	})
	if err != nil {
		return nil, err
	}

	allIDs := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		allIDs[i] = r.ID
	}

	forbid, force := forbidAndForceEdges(resolved)
	clusterRes := cluster.Build(append(force, scores...), forbid, allIDs)

	golden := make(map[uuid.UUID]survivor.GoldenRecord, len(clusterRes.Clusters))
	for root, memberIDs := range clusterRes.Clusters {
		members := make([]*record.NormalizedRecord, 0, len(memberIDs))
		for _, id := range memberIDs {
			if r, ok := store.Get(id); ok {
				members = append(members, r)
			}
		}
		golden[root] = survivor.Resolve(plan.Spec.Survivorship, members)
	}

	return &Result{
		SpecHash:        plan.Hash,
		Scores:          scores,
		Clusters:        clusterRes,
		Golden:          golden,
		Structural:      evaluate.ComputeStructural(clusterRes.Clusters),
		BlockStats:      blockRes,
		BlockingSummary: evaluate.ComputeBlockingStability(blockRes),
		FSParams:        fsParams,
		EMHealth:        emHealth,
		Feedback:        feedback,
	}, nil
}

// trainFS estimates u once from a random sample and holds it fixed, seeds
// an initial lambda from the configured seed blocking rule's observed
// agreement rate, then runs EM over the blocked candidate pairs — folding
// in any resolved feedback as fixed-posterior vectors — to convergence or
// the iteration cap. Finally it blends the EM result with a
// feedback-only parameter estimate per Scoring.Feedback.LearningRate.
func trainFS(ctx context.Context, plan *spec.Plan, store *record.Store, cfg *engineconfig.Config, blockRes blocker.Result, resolved []resolvedFeedback) (*scorer.FSParams, []string, error) {
	fsCfg := spec.FSConfig{}
	if plan.Spec.Scoring.FellegiSunter != nil {
		fsCfg = *plan.Spec.Scoring.FellegiSunter
	}
	if fsCfg.MaxIterations == 0 {
		fsCfg.MaxIterations = cfg.MaxEMIterations
	}
	if fsCfg.ConvergenceDelta == 0 {
		fsCfg.ConvergenceDelta = cfg.EMConvergenceThreshold
	}
	numRules := len(plan.Spec.Rules)

	recs := store.All()
	limiter := rate.NewLimiter(rate.Limit(10000), 1000)
	sampleSize := cfg.MaxUSamplePairs
	if fsCfg.MaxPairs > 0 && fsCfg.MaxPairs < sampleSize {
		sampleSize = fsCfg.MaxPairs
	}
	asKeys, bsKeys, err := scorer.SampleRandomPairs(ctx, recs, sampleSize, fsCfg, limiter)
	if err != nil {
		return nil, nil, err
	}
	randomPairs := make([][2]record.SourceKey, len(asKeys))
	for i := range asKeys {
		randomPairs[i] = [2]record.SourceKey{asKeys[i], bsKeys[i]}
	}
	uVectors := scorer.BuildFeatureVectors(plan, store, randomPairs)
	u := scorer.EstimateU(uVectors, numRules)

	candidatePairs := make([][2]record.SourceKey, 0, len(blockRes.Pairs))
	for _, p := range blockRes.Pairs {
		a, okA := store.Get(p.A)
		b, okB := store.Get(p.B)
		if !okA || !okB {
			continue
		}
		candidatePairs = append(candidatePairs, [2]record.SourceKey{a.Key(), b.Key()})
	}
	trainVectors := scorer.BuildFeatureVectors(plan, store, candidatePairs)

	lambda := scorer.EstimateSeedLambda(trainVectors, fsCfg.SeedBlockingRule-1, fsCfg.RecallTarget, scorer.NewFSParams(numRules).Lambda)

	init := scorer.NewFSParams(numRules)
	init.U = u
	init.Lambda = lambda

	fixed := map[int]float64{}
	var feedbackParams *scorer.FSParams
	if len(resolved) > 0 {
		as, bs, labels := feedbackTrainingInputs(resolved)
		fbPairs := make([][2]record.SourceKey, len(as))
		for i := range as {
			fbPairs[i] = [2]record.SourceKey{as[i], bs[i]}
		}
		fbVectors := scorer.BuildFeatureVectors(plan, store, fbPairs)
		feedbackParams = scorer.EstimateFeedbackParams(fbVectors, labels, numRules)

		base := len(trainVectors)
		trainVectors = append(trainVectors, fbVectors...)
		for i, isMatch := range labels {
			if isMatch {
				fixed[base+i] = 1
			} else {
				fixed[base+i] = 0
			}
		}
	}

	result := scorer.TrainWithFixed(trainVectors, fixed, init, fsCfg)
	params := result.Params
	var health []string
	if !result.Converged {
		health = append(health, "em_did_not_converge")
	}

	if feedbackParams != nil && plan.Spec.Scoring.Feedback != nil {
		params = scorer.BlendWithFeedback(params, feedbackParams, *plan.Spec.Scoring.Feedback)
	}

	return params, health, nil
}
