// Package blocker generates candidate record pairs from blocking keys,
// trading recall for the tractability of not comparing every record against
// every other record.
package blocker

import (
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pair is one candidate pair, always ordered a.ID < b.ID so that a pair
// produced by two different blocking keys, or visited from either side of a
// group, compares and dedupes byte-identically.
type Pair struct {
	A, B uuid.UUID

	// SharedKeys counts how many distinct blocking keys placed A and B in
	// the same group. It is a diagnostic only — never consumed by scoring.
	SharedKeys int
}

// GroupStats reports the size of one blocking-key group, for skew detection.
type GroupStats struct {
	KeyIndex  int
	Value     string
	Size      int
}

// Result is the outcome of running every configured blocking key over a
// record set.
type Result struct {
	Pairs []Pair

	// Groups lists every group produced, largest first, so callers can spot
	// skewed keys.
	Groups []GroupStats

	// SkewWarning is set when the largest group exceeds skewThreshold of the
	// total record count — a key that is too coarse to be useful as a
	// blocking key, reported but never fatal.
	SkewWarning bool
}

// skewThreshold is the fraction of the total record set beyond which a
// single blocking group is flagged as skewed.
const skewThreshold = 0.5

// Generate runs every blocking key in keys over recs, producing a
// deduplicated, deterministically ordered candidate pair set.
//
// An empty result (no keys, or no key ever grouping two records together)
// is not an error: it is reported as zero pairs plus zero groups, and it is
// the caller's responsibility to decide whether that is acceptable.
func Generate(keys []spec.BlockingKey, recs []*record.NormalizedRecord) Result {
	sorted := record.SortByID(recs)

	pairCounts := make(map[uuid.UUID]map[uuid.UUID]int)
	var groups []GroupStats

	for ki, key := range keys {
		buckets := make(map[string][]*record.NormalizedRecord)
		for _, r := range sorted {
			v, ok := blockValue(key, r)
			if !ok {
				continue // any missing component attribute excludes the record from this key
			}
			buckets[v] = append(buckets[v], r)
		}

		for value, members := range buckets {
			if len(members) < 2 {
				continue
			}
			groups = append(groups, GroupStats{KeyIndex: ki, Value: value, Size: len(members)})
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					a, b := members[i], members[j]
					if less(b.ID, a.ID) {
						a, b = b, a
					}
					inner, ok := pairCounts[a.ID]
					if !ok {
						inner = make(map[uuid.UUID]int)
						pairCounts[a.ID] = inner
					}
					inner[b.ID]++
				}
			}
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Size > groups[j].Size })

	var pairs []Pair
	for aID, inner := range pairCounts {
		for bID, count := range inner {
			pairs = append(pairs, Pair{A: aID, B: bID, SharedKeys: count})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return less(pairs[i].A, pairs[j].A)
		}
		return less(pairs[i].B, pairs[j].B)
	})

	res := Result{Pairs: pairs, Groups: groups}
	if len(groups) > 0 && len(sorted) > 0 {
		res.SkewWarning = float64(groups[0].Size) > skewThreshold*float64(len(sorted))
	}
	return res
}

func less(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// blockValue computes the blocking value for a record under one key,
// concatenating each transformed attribute with a separator that cannot
// appear in a transformed value, so that e.g. attributes ["a","bc"] never
// collides with ["ab","c"].
func blockValue(key spec.BlockingKey, r *record.NormalizedRecord) (string, bool) {
	var parts []string
	for _, attr := range key.Attributes {
		v := r.Get(attr)
		if v == record.Missing {
			return "", false
		}
		parts = append(parts, transformValue(key.Transform, v))
	}
	return strings.Join(parts, "\x1f"), true
}

func transformValue(kind string, v string) string {
	switch kind {
	case spec.TransformLower:
		return strings.ToLower(v)
	case spec.TransformFirstN:
		return firstN(v, 4)
	case spec.TransformSubstringAfter:
		return substringAfter(v, "@")
	case spec.TransformDigitsOnly:
		return digitsOnly(v)
	case spec.TransformUnicodeFold:
		return unicodeFold(v)
	default:
		return v
	}
}

func firstN(v string, n int) string {
	r := []rune(v)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

func substringAfter(v, sep string) string {
	idx := strings.Index(v, sep)
	if idx < 0 {
		return v
	}
	return v[idx+len(sep):]
}

func digitsOnly(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unicodeFold applies NFKD decomposition, strips combining marks, and
// lower-cases, so that e.g. "José" and "jose" land in the same blocking
// group.
func unicodeFold(v string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), cases.Lower(nil))
	out, _, err := transform.String(t, v)
	if err != nil {
		return strings.ToLower(v)
	}
	return out
}
