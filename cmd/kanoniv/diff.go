package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kanoniv/kanoniv/pkg/spec"
)

func runDiff(_ context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fromPath := fs.String("from", "", "path to the prior identity spec YAML (required)")
	toPath := fs.String("to", "", "path to the new identity spec YAML (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *fromPath == "" || *toPath == "" {
		fmt.Fprintln(stderr, "diff: --from and --to are both required")
		return 2
	}

	a, err := loadSpec(*fromPath)
	if err != nil {
		fmt.Fprintf(stderr, "diff: %v\n", err)
		return 2
	}
	b, err := loadSpec(*toPath)
	if err != nil {
		fmt.Fprintf(stderr, "diff: %v\n", err)
		return 2
	}

	d := spec.CompareSpecs(a, b)
	fmt.Fprintln(stdout, d.Summary)
	return 0
}

func loadSpec(path string) (*spec.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return spec.Parse(data)
}
