// Package spec implements identity-specification parsing, validation,
// compilation into a plan, content hashing, and structural diffing.
package spec

// Spec is the declarative identity specification as parsed from YAML.
type Spec struct {
	Entity          string             `yaml:"entity" json:"entity"`
	Sources         []Source           `yaml:"sources" json:"sources"`
	Blocking        []BlockingKey      `yaml:"blocking" json:"blocking"`
	Rules           []Rule             `yaml:"rules" json:"rules"`
	Decision        Decision           `yaml:"decision" json:"decision"`
	Scoring         Scoring            `yaml:"scoring" json:"scoring"`
	Survivorship    Survivorship       `yaml:"survivorship" json:"survivorship"`
	Overrides       []string           `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	IdentityVersion string             `yaml:"identity_version" json:"identity_version"`
}

// Source describes one input source and its column mapping.
type Source struct {
	Name       string            `yaml:"name" json:"name"`
	Attributes map[string]string `yaml:"attributes" json:"attributes"` // canonical -> source column
}

// BlockingKey is one blocking key: a set of canonical attributes combined
// (concatenated) after an optional per-attribute transform.
type BlockingKey struct {
	Attributes []string `yaml:"attributes" json:"attributes"`
	Transform  string   `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// Known blocking transforms.
const (
	TransformNone           = ""
	TransformLower          = "lowercase"
	TransformFirstN         = "first_n"
	TransformSubstringAfter = "substring_after"
	TransformDigitsOnly     = "digits_only"
	TransformUnicodeFold    = "unicode_fold"
)

// Rule is one per-field comparator configuration.
type Rule struct {
	Field      string             `yaml:"field" json:"field"`
	Comparator string             `yaml:"comparator" json:"comparator"`
	Weight     float64            `yaml:"weight" json:"weight"`
	Thresholds map[string]float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	// Condition is an optional CEL boolean expression over
	// {entity_type, source_name_a, source_name_b} gating whether this rule
	// is evaluated for a given pair.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Known comparator names.
const (
	ComparatorExact       = "exact"
	ComparatorJaroWinkler = "jaro_winkler"
	ComparatorEmail       = "email"
	ComparatorPhone       = "phone"
	ComparatorName        = "name"
	ComparatorCompany     = "company"
)

var KnownComparators = map[string]bool{
	ComparatorExact:       true,
	ComparatorJaroWinkler: true,
	ComparatorEmail:       true,
	ComparatorPhone:       true,
	ComparatorName:        true,
	ComparatorCompany:     true,
}

// Decision holds the three numeric thresholds over the total score.
type Decision struct {
	Match  float64 `yaml:"match" json:"match"`
	Review float64 `yaml:"review" json:"review"`
	Reject float64 `yaml:"reject" json:"reject"`
}

// Scoring selects weighted_sum or fellegi_sunter and its parameters.
type Scoring struct {
	Type          string       `yaml:"type" json:"type"`
	FellegiSunter *FSConfig    `yaml:"fellegi_sunter,omitempty" json:"fellegi_sunter,omitempty"`
	Feedback      *FeedbackCfg `yaml:"feedback,omitempty" json:"feedback,omitempty"`
}

const (
	ScoringWeightedSum    = "weighted_sum"
	ScoringFellegiSunter  = "fellegi_sunter"
)

// FSConfig configures EM training for Fellegi–Sunter scoring.
type FSConfig struct {
	MaxPairs int   `yaml:"max_pairs,omitempty" json:"max_pairs,omitempty"`
	Seed     int64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// SeedBlockingRule is a 1-based index into Rules naming a
	// high-precision rule (e.g. an exact match on a near-unique field)
	// used to seed EM's initial match prior: the rule's observed
	// agreement rate among candidate pairs, divided by RecallTarget,
	// estimates lambda before the first EM iteration. Zero means
	// "unset" — lambda falls back to NewFSParams's default.
	SeedBlockingRule int `yaml:"seed_blocking_rule,omitempty" json:"seed_blocking_rule,omitempty"`

	// RecallTarget is the assumed recall of SeedBlockingRule at its
	// agree level: what fraction of true matches it is expected to
	// catch. Required for SeedBlockingRule to have any effect.
	RecallTarget float64 `yaml:"recall_target,omitempty" json:"recall_target,omitempty"`

	MaxIterations    int     `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	ConvergenceDelta float64 `yaml:"convergence_delta,omitempty" json:"convergence_delta,omitempty"`
}

// FeedbackCfg configures how supervised-feedback parameters are blended
// into the EM-trained parameters once EM has finished.
type FeedbackCfg struct {
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
}

// Survivorship configures per-field winning-value selection.
type Survivorship struct {
	Fields         map[string]string `yaml:"fields" json:"fields"` // field -> strategy
	SourcePriority []string          `yaml:"source_priority" json:"source_priority"`
}

const (
	SurvivorSourcePriority = "source_priority"
	SurvivorMostRecent     = "most_recent"
	SurvivorLongest        = "longest"
	SurvivorMode           = "mode"
	SurvivorNonNull        = "non_null"
)

var KnownSurvivorStrategies = map[string]bool{
	SurvivorSourcePriority: true,
	SurvivorMostRecent:     true,
	SurvivorLongest:        true,
	SurvivorMode:           true,
	SurvivorNonNull:        true,
}
