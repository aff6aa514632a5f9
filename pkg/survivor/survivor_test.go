package survivor

import (
	"testing"
	"time"

	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"github.com/stretchr/testify/require"
)

func memberWithTime(source, email string, t time.Time) *record.NormalizedRecord {
	return &record.NormalizedRecord{
		ID:          record.NewID(),
		SourceName:  source,
		ExternalID:  source + "-1",
		Data:        map[string]string{"email": email},
		LastUpdated: t,
	}
}

func TestResolve_SourcePriority(t *testing.T) {
	a := memberWithTime("billing", "old@x.com", time.Unix(100, 0))
	b := memberWithTime("crm", "new@x.com", time.Unix(200, 0))
	gr := Resolve(spec.Survivorship{
		Fields:         map[string]string{"email": spec.SurvivorSourcePriority},
		SourcePriority: []string{"crm", "billing"},
	}, []*record.NormalizedRecord{a, b})
	require.Equal(t, "new@x.com", gr.Fields["email"].Value)
}

func TestResolve_MostRecent(t *testing.T) {
	a := memberWithTime("billing", "old@x.com", time.Unix(100, 0))
	b := memberWithTime("crm", "new@x.com", time.Unix(200, 0))
	gr := Resolve(spec.Survivorship{Fields: map[string]string{"email": spec.SurvivorMostRecent}}, []*record.NormalizedRecord{a, b})
	require.Equal(t, "new@x.com", gr.Fields["email"].Value)
}

func TestResolve_NonNullSkipsMissing(t *testing.T) {
	a := memberWithTime("billing", record.Missing, time.Unix(100, 0))
	b := memberWithTime("crm", "present@x.com", time.Unix(50, 0))
	gr := Resolve(spec.Survivorship{Fields: map[string]string{"email": spec.SurvivorNonNull}}, []*record.NormalizedRecord{a, b})
	require.Equal(t, "present@x.com", gr.Fields["email"].Value)
}

func TestKanonivID_StableAcrossMemberOrder(t *testing.T) {
	a := memberWithTime("billing", "x@y.com", time.Unix(1, 0))
	b := memberWithTime("crm", "x@y.com", time.Unix(2, 0))
	gr1 := Resolve(spec.Survivorship{Fields: map[string]string{}}, []*record.NormalizedRecord{a, b})
	gr2 := Resolve(spec.Survivorship{Fields: map[string]string{}}, []*record.NormalizedRecord{b, a})
	require.Equal(t, gr1.KanonivID, gr2.KanonivID)
	require.Len(t, gr1.KanonivID, 32)
}
