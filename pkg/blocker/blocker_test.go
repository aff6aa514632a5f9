package blocker

import (
	"testing"

	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"github.com/stretchr/testify/require"
)

func rec(email, phone string) *record.NormalizedRecord {
	return &record.NormalizedRecord{
		ID:   record.NewID(),
		Data: map[string]string{"email": email, "phone": phone},
	}
}

func TestGenerate_GroupsOnLowercasedEmail(t *testing.T) {
	a := rec("Ann@Example.com", "111")
	b := rec("ann@example.com", "222")
	c := rec("unrelated@other.com", "333")

	keys := []spec.BlockingKey{{Attributes: []string{"email"}, Transform: spec.TransformLower}}
	res := Generate(keys, []*record.NormalizedRecord{a, b, c})

	require.Len(t, res.Pairs, 1)
	require.Equal(t, 1, res.Pairs[0].SharedKeys)
	ids := map[string]bool{res.Pairs[0].A.String(): true, res.Pairs[0].B.String(): true}
	require.True(t, ids[a.ID.String()])
	require.True(t, ids[b.ID.String()])
}

func TestGenerate_MissingAttributeExcludesRecord(t *testing.T) {
	a := rec(record.Missing, "111")
	b := rec(record.Missing, "222")
	keys := []spec.BlockingKey{{Attributes: []string{"email"}}}
	res := Generate(keys, []*record.NormalizedRecord{a, b})
	require.Empty(t, res.Pairs)
}

func TestGenerate_CanonicalOrdering(t *testing.T) {
	a := rec("x@y.com", "1")
	b := rec("x@y.com", "1")
	keys := []spec.BlockingKey{{Attributes: []string{"email"}}}
	res := Generate(keys, []*record.NormalizedRecord{b, a}) // reversed input order
	require.Len(t, res.Pairs, 1)
	require.True(t, res.Pairs[0].A.String() < res.Pairs[0].B.String())
}

func TestGenerate_SharedKeysAccumulatesAcrossMultipleKeys(t *testing.T) {
	a := rec("x@y.com", "5551234")
	b := rec("x@y.com", "5551234")
	keys := []spec.BlockingKey{
		{Attributes: []string{"email"}},
		{Attributes: []string{"phone"}, Transform: spec.TransformDigitsOnly},
	}
	res := Generate(keys, []*record.NormalizedRecord{a, b})
	require.Len(t, res.Pairs, 1)
	require.Equal(t, 2, res.Pairs[0].SharedKeys)
}

func TestGenerate_SkewWarning(t *testing.T) {
	recs := make([]*record.NormalizedRecord, 0, 20)
	for i := 0; i < 20; i++ {
		recs = append(recs, rec("same@everywhere.com", "0"))
	}
	keys := []spec.BlockingKey{{Attributes: []string{"email"}}}
	res := Generate(keys, recs)
	require.True(t, res.SkewWarning)
}

func TestGenerate_UnicodeFoldNormalizesDiacritics(t *testing.T) {
	a := &record.NormalizedRecord{ID: record.NewID(), Data: map[string]string{"name": "José"}}
	b := &record.NormalizedRecord{ID: record.NewID(), Data: map[string]string{"name": "jose"}}
	keys := []spec.BlockingKey{{Attributes: []string{"name"}, Transform: spec.TransformUnicodeFold}}
	res := Generate(keys, []*record.NormalizedRecord{a, b})
	require.Len(t, res.Pairs, 1)
}

func TestGenerate_NoKeysYieldsEmptyNonErrorResult(t *testing.T) {
	res := Generate(nil, []*record.NormalizedRecord{rec("a@b.com", "1")})
	require.Empty(t, res.Pairs)
	require.False(t, res.SkewWarning)
}
