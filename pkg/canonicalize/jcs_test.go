package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	b, err := JCS(input)
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":2,"c":3}`, string(b))
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	b, err := JCS(input)
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	b, err := JCS(input)
	require.NoError(t, err)
	require.Equal(t, `{"html":"<script>alert('xss')</script> &"}`, string(b))
}

func TestCanonicalHash_Stability(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}

	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	h1, err := CanonicalHash(v1)
	require.NoError(t, err)

	h2, err := CanonicalHash(v2)
	require.NoError(t, err)

	require.Equal(t, h1, h2, "semantically identical inputs must hash identically")
}

func TestJCS_NumberTypes(t *testing.T) {
	input := map[string]interface{}{
		"num": json.Number("123.456"),
	}

	b, err := JCS(input)
	require.NoError(t, err)
	require.Equal(t, `{"num":123.456}`, string(b))
}

func TestJCSString_IsReachable(t *testing.T) {
	s, err := JCSString(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	require.NotEmpty(t, s)
}
