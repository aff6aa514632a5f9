// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization used to derive the engine's content-addressed hashes: the
// identity-spec plan hash and the canonical input to a golden
// record's kanoniv_id.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshaled with the standard library (so struct tags and
// json.Marshaler implementations are respected), then transformed into
// canonical form by gowebpki/jcs: map keys sorted by UTF-16 code unit,
// numbers re-serialized per the ECMAScript rules, no insignificant
// whitespace.
func JCS(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}

	return canonical, nil
}

// JCSString returns the JCS canonical form of v as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v. Two values that differ only in map-key order, number
// formatting, or insignificant whitespace hash identically.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
