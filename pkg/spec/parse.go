package spec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kanoniv/kanoniv/pkg/kerrors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("kanoniv-spec.json", bytes.NewReader([]byte(jsonSchemaDoc))); err != nil {
		panic(fmt.Sprintf("spec: embedded json schema is invalid: %v", err))
	}
	return c.MustCompile("kanoniv-spec.json")
}

// Parse parses raw YAML spec text and validates it, returning the parsed
// Spec. Malformed YAML yields *kerrors.SpecParseError. Structural or
// semantic problems yield *kerrors.SpecValidationError with every issue
// found — validation never short-circuits.
func Parse(yamlText []byte) (*Spec, error) {
	var generic interface{}
	if err := yaml.Unmarshal(yamlText, &generic); err != nil {
		return nil, &kerrors.SpecParseError{Err: err}
	}

	// Re-marshal through JSON so the jsonschema validator (and the
	// strongly-typed Spec decode below) see the same JSON-native shape the
	// canonical hash will later be computed from.
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return nil, &kerrors.SpecParseError{Err: fmt.Errorf("yaml->json: %w", err)}
	}

	var issues []kerrors.ValidationIssue

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, &kerrors.SpecParseError{Err: err}
	}
	if err := compiledSchema.Validate(instance); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			issues = append(issues, flattenSchemaErrors(verr)...)
		} else {
			issues = append(issues, kerrors.ValidationIssue{Path: "$", Message: err.Error()})
		}
	}

	var s Spec
	if err := json.Unmarshal(jsonBytes, &s); err != nil && len(issues) == 0 {
		return nil, &kerrors.SpecParseError{Err: err}
	}

	// Semantic validation runs even when the schema already failed, so a
	// caller sees every problem in a single pass wherever the shape allows
	// it (best-effort decode above covers the common case).
	semanticIssues := validateSemantics(&s)
	issues = append(issues, semanticIssues...)

	if len(issues) > 0 {
		return nil, &kerrors.SpecValidationError{Issues: issues}
	}

	return &s, nil
}

func flattenSchemaErrors(verr *jsonschema.ValidationError) []kerrors.ValidationIssue {
	var out []kerrors.ValidationIssue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, kerrors.ValidationIssue{
				Path:    e.InstanceLocation,
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
