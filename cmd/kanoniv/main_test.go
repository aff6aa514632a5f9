package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validSpecYAML = `
entity: person
identity_version: 1.0.0
sources:
  - name: crm
    attributes:
      email: email
blocking:
  - attributes: [email]
    transform: lowercase
rules:
  - field: email
    comparator: email
    weight: 1.0
decision:
  match: 0.85
  review: 0.5
  reject: 0.0
scoring:
  type: weighted_sum
survivorship:
  fields:
    email: non_null
  source_priority: [crm]
`

func writeTempFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, out.String(), "USAGE")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv", "bogus"}, &out, &errOut)
	require.Equal(t, 2, code)
}

func TestRun_ValidateSucceeds(t *testing.T) {
	dir := t.TempDir()
	specPath := writeTempFile(t, dir, "spec.yaml", validSpecYAML)

	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv", "validate", "--spec", specPath}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), "valid:")
}

func TestRun_ValidateMissingFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv", "validate"}, &out, &errOut)
	require.Equal(t, 2, code)
}

func TestRun_PlanPrintsHash(t *testing.T) {
	dir := t.TempDir()
	specPath := writeTempFile(t, dir, "spec.yaml", validSpecYAML)

	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv", "plan", "--spec", specPath}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.NotEmpty(t, out.String())
}

func TestRun_DiffIdenticalSpecsReportsNoChange(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "a.yaml", validSpecYAML)
	b := writeTempFile(t, dir, "b.yaml", validSpecYAML)

	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv", "diff", "--from", a, "--to", b}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.NotEmpty(t, out.String())
	require.Contains(t, out.String(), "rules: +0 -0 ~0; sources: +0 -0 ~0; blocking_changed=false decision_changed=false survivorship_changed=false scoring_changed=false version_changed=false")
}

func TestRun_ReconcileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	specPath := writeTempFile(t, dir, "spec.yaml", validSpecYAML)

	sourcesDir := filepath.Join(dir, "sources")
	require.NoError(t, os.Mkdir(sourcesDir, 0o755))
	writeTempFile(t, sourcesDir, "crm.csv", "external_id,email\n1,x@y.com\n2,x@y.com\n3,unrelated@z.com\n")

	outPath := filepath.Join(dir, "out.knv")

	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv", "reconcile", "--spec", specPath, "--sources", sourcesDir, "--out", outPath}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), "clusters=")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestRun_ReconcileMissingFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"kanoniv", "reconcile"}, &out, &errOut)
	require.Equal(t, 2, code)
}
