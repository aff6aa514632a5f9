package spec

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
	"github.com/kanoniv/kanoniv/pkg/kerrors"
)

// validateSemantics runs every semantic check against s and accumulates all
// issues found — it never stops at the first problem.
func validateSemantics(s *Spec) []kerrors.ValidationIssue {
	var issues []kerrors.ValidationIssue

	if s.Entity == "" {
		issues = append(issues, iss("entity", "must not be empty"))
	}

	if _, err := semver.NewVersion(s.IdentityVersion); s.IdentityVersion != "" && err != nil {
		issues = append(issues, iss("identity_version", fmt.Sprintf("not a valid semantic version: %v", err)))
	}

	declared := declaredAttributes(s)

	if len(s.Sources) == 0 {
		issues = append(issues, iss("sources", "at least one source is required"))
	}
	sourceNames := make(map[string]bool, len(s.Sources))
	for i, src := range s.Sources {
		if src.Name == "" {
			issues = append(issues, iss(fmt.Sprintf("sources[%d].name", i), "must not be empty"))
			continue
		}
		if sourceNames[src.Name] {
			issues = append(issues, iss(fmt.Sprintf("sources[%d].name", i), fmt.Sprintf("duplicate source name %q", src.Name)))
		}
		sourceNames[src.Name] = true
	}

	for i, bk := range s.Blocking {
		for _, attr := range bk.Attributes {
			if !declared[attr] {
				issues = append(issues, iss(fmt.Sprintf("blocking[%d].attributes", i),
					fmt.Sprintf("references undeclared canonical attribute %q", attr)))
			}
		}
		if !isKnownTransform(bk.Transform) {
			issues = append(issues, iss(fmt.Sprintf("blocking[%d].transform", i),
				fmt.Sprintf("unknown transform %q", bk.Transform)))
		}
	}

	if len(s.Rules) == 0 {
		issues = append(issues, iss("rules", "at least one rule is required"))
	}
	for i, r := range s.Rules {
		if r.Field != "" && !declared[r.Field] {
			issues = append(issues, iss(fmt.Sprintf("rules[%d].field", i),
				fmt.Sprintf("references undeclared canonical attribute %q", r.Field)))
		}
		if !KnownComparators[r.Comparator] {
			issues = append(issues, iss(fmt.Sprintf("rules[%d].comparator", i),
				fmt.Sprintf("unknown comparator %q", r.Comparator)))
		}
		if r.Weight < 0 {
			issues = append(issues, iss(fmt.Sprintf("rules[%d].weight", i), "must be >= 0"))
		}
		if r.Condition != "" {
			if _, err := compileCELCondition(r.Condition); err != nil {
				issues = append(issues, iss(fmt.Sprintf("rules[%d].condition", i),
					fmt.Sprintf("invalid CEL expression: %v", err)))
			}
		}
	}

	if !(s.Decision.Reject <= s.Decision.Review && s.Decision.Review <= s.Decision.Match) {
		issues = append(issues, iss("decision",
			fmt.Sprintf("thresholds must satisfy reject <= review <= match, got reject=%g review=%g match=%g",
				s.Decision.Reject, s.Decision.Review, s.Decision.Match)))
	}

	switch s.Scoring.Type {
	case ScoringWeightedSum:
		if s.Scoring.FellegiSunter != nil {
			issues = append(issues, iss("scoring.fellegi_sunter", "must not be set when scoring.type is weighted_sum"))
		}
	case ScoringFellegiSunter:
		// FellegiSunter may be nil: defaults apply.
	case "":
		issues = append(issues, iss("scoring.type", "must be set"))
	default:
		issues = append(issues, iss("scoring.type", fmt.Sprintf("unknown scoring type %q", s.Scoring.Type)))
	}
	if s.Scoring.Feedback != nil {
		if s.Scoring.Feedback.LearningRate < 0 || s.Scoring.Feedback.LearningRate > 1 {
			issues = append(issues, iss("scoring.feedback.learning_rate", "must be within [0, 1]"))
		}
	}

	for field, strategy := range s.Survivorship.Fields {
		if !declared[field] {
			issues = append(issues, iss(fmt.Sprintf("survivorship.fields[%s]", field),
				fmt.Sprintf("references undeclared canonical attribute %q", field)))
		}
		if !KnownSurvivorStrategies[strategy] {
			issues = append(issues, iss(fmt.Sprintf("survivorship.fields[%s]", field),
				fmt.Sprintf("unknown survivorship strategy %q", strategy)))
		}
	}
	if msg, ok := checkPermutation(s.Survivorship.SourcePriority, sourceNames); !ok {
		issues = append(issues, iss("survivorship.source_priority", msg))
	}

	for i, expr := range s.Overrides {
		if _, err := compileCELOverride(expr); err != nil {
			issues = append(issues, iss(fmt.Sprintf("overrides[%d]", i), fmt.Sprintf("invalid CEL expression: %v", err)))
		}
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

func iss(path, msg string) kerrors.ValidationIssue {
	return kerrors.ValidationIssue{Path: path, Message: msg}
}

func declaredAttributes(s *Spec) map[string]bool {
	out := make(map[string]bool)
	for _, src := range s.Sources {
		for canonical := range src.Attributes {
			out[canonical] = true
		}
	}
	return out
}

func isKnownTransform(t string) bool {
	switch t {
	case TransformNone, TransformLower, TransformFirstN, TransformSubstringAfter, TransformDigitsOnly, TransformUnicodeFold:
		return true
	default:
		return false
	}
}

// checkPermutation verifies that priority is a permutation of the declared
// source names.
func checkPermutation(priority []string, sourceNames map[string]bool) (string, bool) {
	if len(priority) != len(sourceNames) {
		return fmt.Sprintf("must list every declared source exactly once (got %d entries, %d sources)",
			len(priority), len(sourceNames)), false
	}
	seen := make(map[string]bool, len(priority))
	for _, name := range priority {
		if !sourceNames[name] {
			return fmt.Sprintf("references undeclared source %q", name), false
		}
		if seen[name] {
			return fmt.Sprintf("duplicate source %q", name), false
		}
		seen[name] = true
	}
	return "", true
}

// compileCELCondition compiles a rule's optional `condition` gate, which
// sees {entity_type, source_name_a, source_name_b}.
func compileCELCondition(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("entity_type", cel.StringType),
		cel.Variable("source_name_a", cel.StringType),
		cel.Variable("source_name_b", cel.StringType),
	)
	if err != nil {
		return nil, err
	}
	return compileCEL(env, expr)
}

// compileCELOverride compiles a top-level override expression, which sees
// {per_field_scores, total_score}.
func compileCELOverride(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("per_field_scores", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("total_score", cel.DoubleType),
	)
	if err != nil {
		return nil, err
	}
	return compileCEL(env, expr)
}

func compileCEL(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must evaluate to a bool, got %s", ast.OutputType())
	}
	return env.Program(ast)
}
