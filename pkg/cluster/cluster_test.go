package cluster

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/scorer"
	"github.com/stretchr/testify/require"
)

func TestBuild_TransitiveMerge(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	scores := []scorer.PairScore{
		{A: a, B: b, TotalScore: 0.95, Decision: scorer.DecisionMatch},
		{A: b, B: c, TotalScore: 0.9, Decision: scorer.DecisionMatch},
	}
	res := Build(scores, nil, []uuid.UUID{a, b, c})
	require.Len(t, res.Clusters, 1)
	for _, members := range res.Clusters {
		require.Len(t, members, 3)
	}
}

func TestBuild_SingletonsSurvive(t *testing.T) {
	a, b, lonely := uuid.New(), uuid.New(), uuid.New()
	scores := []scorer.PairScore{{A: a, B: b, TotalScore: 0.95, Decision: scorer.DecisionMatch}}
	res := Build(scores, nil, []uuid.UUID{a, b, lonely})
	require.Len(t, res.Clusters, 2)
}

func TestBuild_ForbidMergePrunesWeakestEdge(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	scores := []scorer.PairScore{
		{A: a, B: b, TotalScore: 0.99, Decision: scorer.DecisionMatch},
		{A: b, B: c, TotalScore: 0.91, Decision: scorer.DecisionMatch},
	}
	res := Build(scores, [][2]uuid.UUID{{a, c}}, []uuid.UUID{a, b, c})
	require.Len(t, res.Clusters, 2)
	require.Len(t, res.Pruned, 1)
}

func TestBuild_OverriddenPairNeverMerges(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	scores := []scorer.PairScore{{A: a, B: b, TotalScore: 0.99, Decision: scorer.DecisionMatch, Overridden: true}}
	res := Build(scores, nil, []uuid.UUID{a, b})
	require.Len(t, res.Clusters, 2)
}

func TestBuild_ReviewPairsSurfacedNotMerged(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	scores := []scorer.PairScore{{A: a, B: b, TotalScore: 0.6, Decision: scorer.DecisionReview}}
	res := Build(scores, nil, []uuid.UUID{a, b})
	require.Len(t, res.Clusters, 2)
	require.Len(t, res.Reviews, 1)
}
