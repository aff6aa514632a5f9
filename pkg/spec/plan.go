package spec

import (
	"github.com/google/cel-go/cel"
	"github.com/kanoniv/kanoniv/pkg/canonicalize"
	"github.com/kanoniv/kanoniv/pkg/kerrors"
)

// Plan is the compiled form of a validated Spec: stable content hash plus
// pre-compiled CEL programs for rule conditions and override expressions.
type Plan struct {
	Spec *Spec
	Hash string

	// RuleConditions[i] is the compiled condition for Spec.Rules[i], or nil
	// if the rule has no condition (always evaluated).
	RuleConditions []cel.Program

	// Overrides holds the compiled top-level override expressions, in
	// declaration order.
	Overrides []cel.Program
}

// Compile validates s (if not already validated by the caller — Compile is
// idempotent and safe to call on output from Parse) and produces a Plan
// with a stable content hash.
//
// Two specs that are semantically identical after canonicalization hash
// identically, regardless of key order or numeric formatting in the
// original YAML; changing any decision-bearing field changes the hash.
func Compile(s *Spec) (*Plan, error) {
	if issues := validateSemantics(s); len(issues) > 0 {
		return nil, &kerrors.SpecValidationError{Issues: issues}
	}
	return compile(s)
}

// CompileTrusted skips validateSemantics entirely and goes straight to
// hashing and CEL compilation. It exists for callers (pkg/plancache) that
// already know s passed validation in an earlier process — e.g. it was
// just read back, byte-identical by hash, from a plan cache that only
// ever stores specs that previously compiled cleanly.
func CompileTrusted(s *Spec) (*Plan, error) {
	return compile(s)
}

func compile(s *Spec) (*Plan, error) {
	hash, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return nil, err
	}

	conditions := make([]cel.Program, len(s.Rules))
	for i, r := range s.Rules {
		if r.Condition == "" {
			continue
		}
		prg, err := compileCELCondition(r.Condition)
		if err != nil {
			return nil, err
		}
		conditions[i] = prg
	}

	overrides := make([]cel.Program, len(s.Overrides))
	for i, expr := range s.Overrides {
		prg, err := compileCELOverride(expr)
		if err != nil {
			return nil, err
		}
		overrides[i] = prg
	}

	return &Plan{
		Spec:           s,
		Hash:           hash,
		RuleConditions: conditions,
		Overrides:      overrides,
	}, nil
}

// EvalCondition evaluates rule i's optional condition. A rule with no
// condition always evaluates true.
func (p *Plan) EvalCondition(i int, entityType, sourceA, sourceB string) (bool, error) {
	prg := p.RuleConditions[i]
	if prg == nil {
		return true, nil
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"entity_type":   entityType,
		"source_name_a": sourceA,
		"source_name_b": sourceB,
	})
	if err != nil {
		return false, err
	}
	return out.Value().(bool), nil
}

// EvalOverrides evaluates every compiled override expression against a
// pair's scores. It returns true if ANY override fires, used by the scorer
// to force a pair's decision regardless of its computed score.
func (p *Plan) EvalOverrides(perFieldScores map[string]float64, totalScore float64) (bool, error) {
	input := map[string]interface{}{
		"per_field_scores": perFieldScores,
		"total_score":      totalScore,
	}
	for _, prg := range p.Overrides {
		out, _, err := prg.Eval(input)
		if err != nil {
			return false, err
		}
		if out.Value().(bool) {
			return true, nil
		}
	}
	return false, nil
}
