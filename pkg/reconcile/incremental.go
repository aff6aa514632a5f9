package reconcile

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/blocker"
	"github.com/kanoniv/kanoniv/pkg/cluster"
	"github.com/kanoniv/kanoniv/pkg/engineconfig"
	"github.com/kanoniv/kanoniv/pkg/evaluate"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/scorer"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"github.com/kanoniv/kanoniv/pkg/survivor"
	"github.com/kanoniv/kanoniv/pkg/workerpool"
)

// RunIncremental resumes a prior Snapshot with newRecs ingested into the
// existing id-space:
//  1. verify plan.Hash against the snapshot's spec hash (warn, don't abort,
//     on mismatch — a changed spec just means trained FS params may no
//     longer be well calibrated, not that the run is invalid);
//  2. ingest new records into the existing store;
//  3. re-block, but only pairs touching at least one new record are scored;
//  4. score with the snapshot's existing FS params (if any) rather than
//     retraining from scratch;
//  5. extend the prior union-find state by seeding it from the snapshot's
//     clusters before applying new match edges, and re-apply persisted (plus
//     any newly supplied) feedback as forbid/force-merge constraints;
//  6. recompute survivorship only for clusters that contain a new record or
//     a record from a newly scored pair; every other cluster reuses its
//     prior golden record and id unchanged.
func RunIncremental(ctx context.Context, plan *spec.Plan, prior *Snapshot, newRecs []*record.NormalizedRecord, cfg *engineconfig.Config, newFeedback []FeedbackPair) (*Result, error) {
	if cfg == nil {
		cfg = engineconfig.Default()
	}
	logger := slog.Default().With("component", "reconcile.incremental")

	if prior.SpecHash != plan.Hash {
		logger.Warn("spec hash mismatch on incremental run; continuing with existing trained parameters",
			"prior_hash", prior.SpecHash, "current_hash", plan.Hash)
	}

	feedback := append(prior.FeedbackPairs(), newFeedback...)

	store := record.NewStore()
	newIDs := make(map[uuid.UUID]bool, len(newRecs))
	for _, r := range prior.Records {
		_ = store.Add(r)
	}
	for _, r := range newRecs {
		if err := store.Add(r); err != nil {
			continue // duplicate (source_name, external_id): already present, skip
		}
		newIDs[r.ID] = true
	}

	allRecs := store.All()
	blockRes := blocker.Generate(plan.Spec.Blocking, allRecs)

	// Only pairs touching at least one new record need scoring; everything
	// else was already resolved in a prior run.
	var touchedPairs []blocker.Pair
	for _, p := range blockRes.Pairs {
		if newIDs[p.A] || newIDs[p.B] {
			touchedPairs = append(touchedPairs, p)
		}
	}

	fsParams := dtoToParams(prior.FSParams)

	scores, err := workerpool.Run(ctx, "scoring", cfg.Workers, touchedPairs, func(_ context.Context, _ int, p blocker.Pair) (scorer.PairScore, error) {
		a, _ := store.Get(p.A)
		b, _ := store.Get(p.B)
		if fsParams != nil {
			return scorer.FellegiSunter(plan, fsParams, a, b)
		}
		return scorer.WeightedSum(plan, a, b)
	})
	if err != nil {
		return nil, err
	}

	allIDs := make([]uuid.UUID, len(allRecs))
	for i, r := range allRecs {
		allIDs[i] = r.ID
	}

	// Seed the cluster build with prior membership by synthesizing a
	// "match" edge for every pair of co-members in a prior cluster, so
	// Build's union-find starts from where the last run left off.
	seedEdges := make([]scorer.PairScore, 0)
	for _, members := range prior.Clusters {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				seedEdges = append(seedEdges, scorer.PairScore{A: members[i], B: members[j], TotalScore: 1, Decision: scorer.DecisionMatch})
			}
		}
	}
	resolved := resolveFeedback(store, feedback)
	forbid, force := forbidAndForceEdges(resolved)
	combined := append(seedEdges, append(force, scores...)...)

	clusterRes := cluster.Build(combined, forbid, allIDs)

	changedRoots := make(map[uuid.UUID]bool)
	for _, p := range touchedPairs {
		changedRoots[p.A] = true
		changedRoots[p.B] = true
	}

	golden := make(map[uuid.UUID]survivor.GoldenRecord, len(clusterRes.Clusters))
	for root, memberIDs := range clusterRes.Clusters {
		needsRecompute := false
		for _, id := range memberIDs {
			if newIDs[id] || changedRoots[id] {
				needsRecompute = true
				break
			}
		}
		if !needsRecompute {
			// Unchanged cluster: its membership, and therefore its root id
			// (the lowest member id), is identical to the prior run's, so
			// the prior golden record carries forward unchanged rather
			// than being dropped.
			if gr, ok := prior.Golden[root.String()]; ok {
				golden[root] = gr
				continue
			}
		}
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
		Feedback:        feedback,
	}, nil
}

func dtoToParams(dto *FSParamsDTO) *scorer.FSParams {
	if dto == nil {
		return nil
	}
	p := &scorer.FSParams{Lambda: dto.Lambda}
	p.M = make([][3]float64, len(dto.M))
	for i, row := range dto.M {
		for l := 0; l < len(row) && l < 3; l++ {
			p.M[i][l] = row[l]
		}
	}
	p.U = make([][3]float64, len(dto.U))
	for i, row := range dto.U {
		for l := 0; l < len(row) && l < 3; l++ {
			p.U[i][l] = row[l]
		}
	}
	return p
}
