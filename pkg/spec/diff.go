package spec

import (
	"fmt"
	"reflect"

	"github.com/Masterminds/semver/v3"
)

// FieldChange is a single before/after delta.
type FieldChange struct {
	Path   string      `json:"path"`
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// RuleChange reports one rule added, removed, or modified between two
// specs.
type RuleChange struct {
	Field   string        `json:"field"`
	Kind    string        `json:"kind"` // "added", "removed", "modified"
	Before  *Rule         `json:"before,omitempty"`
	After   *Rule         `json:"after,omitempty"`
	Changes []FieldChange `json:"changes,omitempty"`
}

// SourceChange reports one source added, removed, or modified.
type SourceChange struct {
	Name    string        `json:"name"`
	Kind    string        `json:"kind"`
	Before  *Source       `json:"before,omitempty"`
	After   *Source       `json:"after,omitempty"`
	Changes []FieldChange `json:"changes,omitempty"`
}

// Diff is the structural diff between two specs.
type Diff struct {
	Rules               []RuleChange   `json:"rules,omitempty"`
	Sources             []SourceChange `json:"sources,omitempty"`
	BlockingChanged      bool          `json:"blocking_changed"`
	DecisionChanged      bool          `json:"decision_changed"`
	SurvivorshipChanged  bool          `json:"survivorship_changed"`
	ScoringChanged       bool          `json:"scoring_changed"`
	MetadataChanged      bool          `json:"metadata_changed"`
	VersionChanged       bool          `json:"version_changed"`
	VersionIsMajorBump   bool          `json:"version_is_major_bump"`
	Summary             string         `json:"summary"`
}

// CompareSpecs computes a structural diff between a (before) and b (after).
func CompareSpecs(a, b *Spec) *Diff {
	d := &Diff{}

	ruleByField := func(rules []Rule) map[string]Rule {
		m := make(map[string]Rule, len(rules))
		for _, r := range rules {
			m[r.Field] = r
		}
		return m
	}
	beforeRules, afterRules := ruleByField(a.Rules), ruleByField(b.Rules)
	for field, br := range beforeRules {
		if ar, ok := afterRules[field]; ok {
			if changes := diffRule(br, ar); len(changes) > 0 {
				brCopy, arCopy := br, ar
				d.Rules = append(d.Rules, RuleChange{Field: field, Kind: "modified", Before: &brCopy, After: &arCopy, Changes: changes})
			}
		} else {
			brCopy := br
			d.Rules = append(d.Rules, RuleChange{Field: field, Kind: "removed", Before: &brCopy})
		}
	}
	for field, ar := range afterRules {
		if _, ok := beforeRules[field]; !ok {
			arCopy := ar
			d.Rules = append(d.Rules, RuleChange{Field: field, Kind: "added", After: &arCopy})
		}
	}

	sourceByName := func(sources []Source) map[string]Source {
		m := make(map[string]Source, len(sources))
		for _, s := range sources {
			m[s.Name] = s
		}
		return m
	}
	beforeSrc, afterSrc := sourceByName(a.Sources), sourceByName(b.Sources)
	for name, bs := range beforeSrc {
		if as, ok := afterSrc[name]; ok {
			if changes := diffSource(bs, as); len(changes) > 0 {
				bsCopy, asCopy := bs, as
				d.Sources = append(d.Sources, SourceChange{Name: name, Kind: "modified", Before: &bsCopy, After: &asCopy, Changes: changes})
			}
		} else {
			bsCopy := bs
			d.Sources = append(d.Sources, SourceChange{Name: name, Kind: "removed", Before: &bsCopy})
		}
	}
	for name, as := range afterSrc {
		if _, ok := beforeSrc[name]; !ok {
			asCopy := as
			d.Sources = append(d.Sources, SourceChange{Name: name, Kind: "added", After: &asCopy})
		}
	}

	d.BlockingChanged = !reflect.DeepEqual(a.Blocking, b.Blocking)
	d.DecisionChanged = a.Decision != b.Decision
	d.SurvivorshipChanged = !reflect.DeepEqual(a.Survivorship, b.Survivorship)
	d.ScoringChanged = !reflect.DeepEqual(a.Scoring, b.Scoring)
	d.MetadataChanged = a.Entity != b.Entity
	d.VersionChanged = a.IdentityVersion != b.IdentityVersion

	if d.VersionChanged {
		av, aerr := semver.NewVersion(a.IdentityVersion)
		bv, berr := semver.NewVersion(b.IdentityVersion)
		if aerr == nil && berr == nil {
			d.VersionIsMajorBump = bv.Major() > av.Major()
		}
	}

	d.Summary = summarize(d)
	return d
}

func diffRule(a, b Rule) []FieldChange {
	var changes []FieldChange
	if a.Comparator != b.Comparator {
		changes = append(changes, FieldChange{Path: "comparator", Before: a.Comparator, After: b.Comparator})
	}
	if a.Weight != b.Weight {
		changes = append(changes, FieldChange{Path: "weight", Before: a.Weight, After: b.Weight})
	}
	if !reflect.DeepEqual(a.Thresholds, b.Thresholds) {
		changes = append(changes, FieldChange{Path: "thresholds", Before: a.Thresholds, After: b.Thresholds})
	}
	if a.Condition != b.Condition {
		changes = append(changes, FieldChange{Path: "condition", Before: a.Condition, After: b.Condition})
	}
	return changes
}

func diffSource(a, b Source) []FieldChange {
	var changes []FieldChange
	if !reflect.DeepEqual(a.Attributes, b.Attributes) {
		changes = append(changes, FieldChange{Path: "attributes", Before: a.Attributes, After: b.Attributes})
	}
	return changes
}

func summarize(d *Diff) string {
	added, removed, modified := 0, 0, 0
	for _, rc := range d.Rules {
		switch rc.Kind {
		case "added":
			added++
		case "removed":
			removed++
		case "modified":
			modified++
		}
	}
	srcAdded, srcRemoved, srcModified := 0, 0, 0
	for _, sc := range d.Sources {
		switch sc.Kind {
		case "added":
			srcAdded++
		case "removed":
			srcRemoved++
		case "modified":
			srcModified++
		}
	}
	return fmt.Sprintf(
		"rules: +%d -%d ~%d; sources: +%d -%d ~%d; blocking_changed=%v decision_changed=%v survivorship_changed=%v scoring_changed=%v version_changed=%v (major=%v)",
		added, removed, modified, srcAdded, srcRemoved, srcModified,
		d.BlockingChanged, d.DecisionChanged, d.SurvivorshipChanged, d.ScoringChanged, d.VersionChanged, d.VersionIsMajorBump,
	)
}
