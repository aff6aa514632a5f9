// Package evaluate computes the structural, stability, ground-truth, and
// changelog metrics a reconciliation run reports alongside its clusters.
package evaluate

import (
	"sort"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/blocker"
	"github.com/kanoniv/kanoniv/pkg/record"
)

// Histogram maps a cluster size to how many clusters have that size.
type Histogram map[int]int

// Structural is the set of shape metrics over one run's clusters.
type Structural struct {
	TotalRecords      int
	ClusterCount      int
	SingletonCount    int
	SingletonFraction float64
	LargestCluster    int
	SizeHistogram     Histogram

	// MergeRate is the fraction of input records "absorbed" by merging:
	// 1 - clusters/records. A run that merges nothing scores 0; a run that
	// merges everything into one cluster approaches 1.
	MergeRate float64
}

// ComputeStructural summarizes cluster shape.
func ComputeStructural(clusters map[uuid.UUID][]uuid.UUID) Structural {
	s := Structural{ClusterCount: len(clusters), SizeHistogram: make(Histogram)}
	for _, members := range clusters {
		n := len(members)
		s.TotalRecords += n
		s.SizeHistogram[n]++
		if n == 1 {
			s.SingletonCount++
		}
		if n > s.LargestCluster {
			s.LargestCluster = n
		}
	}
	if s.ClusterCount > 0 {
		s.SingletonFraction = float64(s.SingletonCount) / float64(s.ClusterCount)
	}
	if s.TotalRecords > 0 {
		s.MergeRate = 1 - float64(s.ClusterCount)/float64(s.TotalRecords)
	}
	return s
}

// BlockingStability reports coarse blocking-stage diagnostics alongside the
// structural metrics.
type BlockingStability struct {
	GroupCount     int
	LargestGroup   int
	SkewedKeyCount int
}

// ComputeBlockingStability summarizes a blocking run's group shape. Groups
// are already sorted largest-first by blocker.Generate, so the first
// entry's size is the largest; SkewedKeyCount counts every group tied for
// that size when the run flagged a skew, since a blocking key that coarse
// is equally suspect whichever key index produced it.
func ComputeBlockingStability(res blocker.Result) BlockingStability {
	s := BlockingStability{GroupCount: len(res.Groups)}
	for _, g := range res.Groups {
		if g.Size > s.LargestGroup {
			s.LargestGroup = g.Size
		}
	}
	if res.SkewWarning {
		for _, g := range res.Groups {
			if g.Size == s.LargestGroup {
				s.SkewedKeyCount++
			}
		}
	}
	return s
}

// GroundTruthLabel is one known-correct pairwise judgment used to validate
// a run against held-out labeled data.
type GroundTruthLabel struct {
	A, B    uuid.UUID
	IsMatch bool
}

// GroundTruth holds precision/recall/F1 against a labeled pair set.
type GroundTruth struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	Precision      float64
	Recall         float64
	F1             float64
}

// EvaluateGroundTruth scores clusters against labels: two ids are
// considered "predicted match" if they ended up in the same cluster.
func EvaluateGroundTruth(clusters map[uuid.UUID][]uuid.UUID, labels []GroundTruthLabel) GroundTruth {
	clusterOf := make(map[uuid.UUID]uuid.UUID)
	for root, members := range clusters {
		for _, m := range members {
			clusterOf[m] = root
		}
	}

	var gt GroundTruth
	for _, l := range labels {
		predictedMatch := clusterOf[l.A] == clusterOf[l.B]
		switch {
		case predictedMatch && l.IsMatch:
			gt.TruePositives++
		case predictedMatch && !l.IsMatch:
			gt.FalsePositives++
		case !predictedMatch && l.IsMatch:
			gt.FalseNegatives++
		}
	}

	if gt.TruePositives+gt.FalsePositives > 0 {
		gt.Precision = float64(gt.TruePositives) / float64(gt.TruePositives+gt.FalsePositives)
	}
	if gt.TruePositives+gt.FalseNegatives > 0 {
		gt.Recall = float64(gt.TruePositives) / float64(gt.TruePositives+gt.FalseNegatives)
	}
	if gt.Precision+gt.Recall > 0 {
		gt.F1 = 2 * gt.Precision * gt.Recall / (gt.Precision + gt.Recall)
	}
	return gt
}

// ChangeKind classifies one golden-record cluster's transition between two
// runs.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeGrown   ChangeKind = "grown"
	ChangeMerged  ChangeKind = "merged"
	ChangeSplit   ChangeKind = "split"
	ChangeRemoved ChangeKind = "removed"
)

// ClusterChange is one entry in a changelog.
type ClusterChange struct {
	Kind          ChangeKind
	CurrentID     string   // golden id after this run, empty for "removed"
	PriorIDs      []string // golden id(s) before this run that relate to this change
	MembersAdded  []record.SourceKey
	MembersGone   []record.SourceKey
}

// Changelog classifies every cluster transition between prior and current
// snapshots, each keyed by golden record id with member source keys
// (source keys, not fresh per-run record ids, are what persists across
// an incremental run).
func Changelog(prior, current map[string][]record.SourceKey) []ClusterChange {
	priorOwner := make(map[record.SourceKey]string)
	for id, members := range prior {
		for _, m := range members {
			priorOwner[m] = id
		}
	}
	currentOwner := make(map[record.SourceKey]string)
	for id, members := range current {
		for _, m := range members {
			currentOwner[m] = id
		}
	}

	var changes []ClusterChange

	for currID, members := range current {
		priorIDs := map[string]bool{}
		var added []record.SourceKey
		for _, m := range members {
			if pid, ok := priorOwner[m]; ok {
				priorIDs[pid] = true
			} else {
				added = append(added, m)
			}
		}

		switch len(priorIDs) {
		case 0:
			changes = append(changes, ClusterChange{Kind: ChangeCreated, CurrentID: currID, MembersAdded: sortedKeys(added)})
		case 1:
			var only string
			for id := range priorIDs {
				only = id
			}
			if len(added) > 0 {
				changes = append(changes, ClusterChange{Kind: ChangeGrown, CurrentID: currID, PriorIDs: []string{only}, MembersAdded: sortedKeys(added)})
			}
			// else: unchanged, not reported.
		default:
			ids := make([]string, 0, len(priorIDs))
			for id := range priorIDs {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			changes = append(changes, ClusterChange{Kind: ChangeMerged, CurrentID: currID, PriorIDs: ids, MembersAdded: sortedKeys(added)})
		}
	}

	for priorID, members := range prior {
		currIDs := map[string]bool{}
		var gone []record.SourceKey
		for _, m := range members {
			if cid, ok := currentOwner[m]; ok {
				currIDs[cid] = true
			} else {
				gone = append(gone, m)
			}
		}
		switch len(currIDs) {
		case 0:
			changes = append(changes, ClusterChange{Kind: ChangeRemoved, PriorIDs: []string{priorID}, MembersGone: sortedKeys(gone)})
		default:
			if len(currIDs) > 1 {
				ids := make([]string, 0, len(currIDs))
				for id := range currIDs {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				changes = append(changes, ClusterChange{Kind: ChangeSplit, PriorIDs: []string{priorID}, MembersGone: sortedKeys(gone)})
				_ = ids // current-side ids already captured via the "merged" entries above
			}
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Kind != changes[j].Kind {
			return changes[i].Kind < changes[j].Kind
		}
		return changes[i].CurrentID < changes[j].CurrentID
	})
	return changes
}

func sortedKeys(keys []record.SourceKey) []record.SourceKey {
	out := make([]record.SourceKey, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out
}
