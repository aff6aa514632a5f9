package spec

// jsonSchemaDoc is a structural JSON Schema for the identity spec, applied
// before semantic validation. It catches malformed
// shapes — wrong types, unknown top-level keys — early, with machine
// readable errors that feed the same accumulated SpecValidationError as the
// hand-written semantic checks.
const jsonSchemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["entity", "sources", "blocking", "rules", "decision", "scoring", "survivorship", "identity_version"],
  "additionalProperties": false,
  "properties": {
    "entity": {"type": "string", "minLength": 1},
    "identity_version": {"type": "string", "minLength": 1},
    "overrides": {"type": "array", "items": {"type": "string"}},
    "sources": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "attributes"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "attributes": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          }
        }
      }
    },
    "blocking": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["attributes"],
        "additionalProperties": false,
        "properties": {
          "attributes": {"type": "array", "items": {"type": "string"}, "minItems": 1},
          "transform": {"type": "string"}
        }
      }
    },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field", "comparator", "weight"],
        "additionalProperties": false,
        "properties": {
          "field": {"type": "string", "minLength": 1},
          "comparator": {"type": "string"},
          "weight": {"type": "number"},
          "thresholds": {"type": "object", "additionalProperties": {"type": "number"}},
          "condition": {"type": "string"}
        }
      }
    },
    "decision": {
      "type": "object",
      "required": ["match", "review", "reject"],
      "additionalProperties": false,
      "properties": {
        "match": {"type": "number"},
        "review": {"type": "number"},
        "reject": {"type": "number"}
      }
    },
    "scoring": {
      "type": "object",
      "required": ["type"],
      "additionalProperties": false,
      "properties": {
        "type": {"enum": ["weighted_sum", "fellegi_sunter"]},
        "fellegi_sunter": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "max_pairs": {"type": "integer"},
            "seed": {"type": "integer"},
            "seed_blocking_rule": {"type": "integer"},
            "recall_target": {"type": "number"},
            "max_iterations": {"type": "integer"},
            "convergence_delta": {"type": "number"}
          }
        },
        "feedback": {
          "type": "object",
          "additionalProperties": false,
          "required": ["learning_rate"],
          "properties": {
            "learning_rate": {"type": "number", "minimum": 0, "maximum": 1}
          }
        }
      }
    },
    "survivorship": {
      "type": "object",
      "required": ["fields", "source_priority"],
      "additionalProperties": false,
      "properties": {
        "fields": {"type": "object", "additionalProperties": {"type": "string"}},
        "source_priority": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`
