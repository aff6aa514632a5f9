// Package cluster groups matched pairs into entity clusters via a
// union-find (disjoint-set) structure with a forbid-merge side table for
// overridden pairs.
package cluster

import (
	"sort"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/scorer"
)

// unionFind is a disjoint-set over record ids with path compression and
// union by rank.
type unionFind struct {
	parent map[uuid.UUID]uuid.UUID
	rank   map[uuid.UUID]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[uuid.UUID]uuid.UUID), rank: make(map[uuid.UUID]int)}
}

func (u *unionFind) find(x uuid.UUID) uuid.UUID {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(a, b uuid.UUID) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// forbidKey is an unordered pair of record ids used as a side-table key.
type forbidKey struct{ lo, hi uuid.UUID }

func newForbidKey(a, b uuid.UUID) forbidKey {
	if less(b, a) {
		a, b = b, a
	}
	return forbidKey{lo: a, hi: b}
}

func less(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// ReviewPair surfaces a pair whose decision was "review" — not merged, but
// reported for human adjudication.
type ReviewPair struct {
	A, B       uuid.UUID
	TotalScore float64
}

// EdgePruneEvent records a weakest-edge prune: a merge was attempted
// between two records whose transitive cluster membership, due to an
// earlier forbid-merge constraint, required dropping the lowest-scoring
// edge that would otherwise have connected two forbidden clusters.
type EdgePruneEvent struct {
	A, B       uuid.UUID
	TotalScore float64
}

// Result is the clustering outcome for one run.
type Result struct {
	// Clusters maps a cluster id (its lowest-id member) to every member id,
	// sorted, for deterministic readout.
	Clusters map[uuid.UUID][]uuid.UUID

	Reviews []ReviewPair
	Pruned  []EdgePruneEvent
}

// Build consumes every scored pair and produces clusters. Forbidden pairs
// (explicit forbidMerge entries, or pairs a CEL override marked
// Overridden) never union their endpoints; if processing match edges in
// score order would otherwise merge two already-forbidden-apart clusters,
// the weakest qualifying edge is pruned instead of applied.
//
// allIDs is every record id that participated in blocking, including
// singletons with no candidate pairs at all, so they still surface as
// size-1 clusters.
func Build(scores []scorer.PairScore, forbidMerge [][2]uuid.UUID, allIDs []uuid.UUID) Result {
	forbidden := make(map[forbidKey]bool, len(forbidMerge))
	for _, pr := range forbidMerge {
		forbidden[newForbidKey(pr[0], pr[1])] = true
	}

	uf := newUnionFind()
	for _, id := range allIDs {
		uf.find(id)
	}

	// Process strongest matches first so a weak edge is the one pruned when
	// a forbid-merge constraint would otherwise be violated transitively.
	matches := make([]scorer.PairScore, 0, len(scores))
	for _, ps := range scores {
		if ps.Decision == scorer.DecisionMatch {
			matches = append(matches, ps)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].TotalScore != matches[j].TotalScore {
			return matches[i].TotalScore > matches[j].TotalScore
		}
		return lessPair(matches[i], matches[j])
	})

	var pruned []EdgePruneEvent
	for _, ps := range matches {
		key := newForbidKey(ps.A, ps.B)
		if forbidden[key] || ps.Overridden {
			pruned = append(pruned, EdgePruneEvent{A: ps.A, B: ps.B, TotalScore: ps.TotalScore})
			continue
		}
		if wouldViolateForbid(uf, forbidden, ps.A, ps.B) {
			pruned = append(pruned, EdgePruneEvent{A: ps.A, B: ps.B, TotalScore: ps.TotalScore})
			continue
		}
		uf.union(ps.A, ps.B)
	}

	var reviews []ReviewPair
	for _, ps := range scores {
		if ps.Decision == scorer.DecisionReview {
			reviews = append(reviews, ReviewPair{A: ps.A, B: ps.B, TotalScore: ps.TotalScore})
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		if reviews[i].A != reviews[j].A {
			return less(reviews[i].A, reviews[j].A)
		}
		return less(reviews[i].B, reviews[j].B)
	})

	byRoot := make(map[uuid.UUID][]uuid.UUID)
	for _, id := range allIDs {
		root := uf.find(id)
		byRoot[root] = append(byRoot[root], id)
	}
	clusters := make(map[uuid.UUID][]uuid.UUID, len(byRoot))
	for _, members := range byRoot {
		sort.Slice(members, func(i, j int) bool { return less(members[i], members[j]) })
		clusters[members[0]] = members
	}

	return Result{Clusters: clusters, Reviews: reviews, Pruned: pruned}
}

// wouldViolateForbid reports whether unioning a and b would transitively
// join two record ids that appear together in a forbid-merge pair.
func wouldViolateForbid(uf *unionFind, forbidden map[forbidKey]bool, a, b uuid.UUID) bool {
	if len(forbidden) == 0 {
		return false
	}
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	for key := range forbidden {
		loRoot, hiRoot := uf.find(key.lo), uf.find(key.hi)
		if (loRoot == ra && hiRoot == rb) || (loRoot == rb && hiRoot == ra) {
			return true
		}
	}
	return false
}

func lessPair(a, b scorer.PairScore) bool {
	if a.A != b.A {
		return less(a.A, b.A)
	}
	return less(a.B, b.B)
}
