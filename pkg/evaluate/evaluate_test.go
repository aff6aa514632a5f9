package evaluate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/blocker"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/stretchr/testify/require"
)

func TestComputeStructural_Basic(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	clusters := map[uuid.UUID][]uuid.UUID{
		a: {a, b},
		c: {c},
	}
	s := ComputeStructural(clusters)
	require.Equal(t, 2, s.ClusterCount)
	require.Equal(t, 3, s.TotalRecords)
	require.Equal(t, 1, s.SingletonCount)
	require.Equal(t, 2, s.LargestCluster)

	wantHistogram := Histogram{1: 1, 2: 1}
	if diff := cmp.Diff(wantHistogram, s.SizeHistogram); diff != "" {
		t.Errorf("size histogram mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateGroundTruth_PerfectPrediction(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	clusters := map[uuid.UUID][]uuid.UUID{a: {a, b}, c: {c}}
	labels := []GroundTruthLabel{
		{A: a, B: b, IsMatch: true},
		{A: a, B: c, IsMatch: false},
	}
	gt := EvaluateGroundTruth(clusters, labels)
	require.Equal(t, 1.0, gt.Precision)
	require.Equal(t, 1.0, gt.Recall)
	require.Equal(t, 1.0, gt.F1)
}

func TestChangelog_CreatedGrownMerged(t *testing.T) {
	k := func(id string) record.SourceKey { return record.SourceKey{SourceName: "crm", ExternalID: id} }

	prior := map[string][]record.SourceKey{
		"g1": {k("1")},
		"g2": {k("2")},
		"g3": {k("9")},
	}
	current := map[string][]record.SourceKey{
		"g1": {k("1"), k("3")},    // grown
		"gNew": {k("2"), k("9")},  // merged: g2+g3
		"gCreated": {k("99")},     // created
	}

	changes := Changelog(prior, current)

	var kinds []ChangeKind
	for _, c := range changes {
		kinds = append(kinds, c.Kind)
	}
	require.Contains(t, kinds, ChangeGrown)
	require.Contains(t, kinds, ChangeMerged)
	require.Contains(t, kinds, ChangeCreated)
}

func TestComputeBlockingStability_FlagsTiedLargestGroups(t *testing.T) {
	res := blocker.Result{
		Groups: []blocker.GroupStats{
			{KeyIndex: 0, Value: "a", Size: 5},
			{KeyIndex: 1, Value: "b", Size: 5},
			{KeyIndex: 0, Value: "c", Size: 2},
		},
		SkewWarning: true,
	}
	s := ComputeBlockingStability(res)
	require.Equal(t, 3, s.GroupCount)
	require.Equal(t, 5, s.LargestGroup)
	require.Equal(t, 2, s.SkewedKeyCount)
}

func TestComputeBlockingStability_NoSkewReportsZeroSkewedKeys(t *testing.T) {
	res := blocker.Result{
		Groups:      []blocker.GroupStats{{KeyIndex: 0, Value: "a", Size: 3}},
		SkewWarning: false,
	}
	s := ComputeBlockingStability(res)
	require.Equal(t, 0, s.SkewedKeyCount)
}

func TestChangelog_Removed(t *testing.T) {
	k := func(id string) record.SourceKey { return record.SourceKey{SourceName: "crm", ExternalID: id} }
	prior := map[string][]record.SourceKey{"g1": {k("1")}}
	current := map[string][]record.SourceKey{}
	changes := Changelog(prior, current)
	require.Len(t, changes, 1)
	require.Equal(t, ChangeRemoved, changes[0].Kind)
}
