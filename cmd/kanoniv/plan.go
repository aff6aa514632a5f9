package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kanoniv/kanoniv/pkg/spec"
)

func runPlan(_ context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	specPath := fs.String("spec", "", "path to the identity spec YAML (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *specPath == "" {
		fmt.Fprintln(stderr, "plan: --spec is required")
		return 2
	}

	data, err := os.ReadFile(*specPath)
	if err != nil {
		fmt.Fprintf(stderr, "plan: %v\n", err)
		return 3
	}

	s, err := spec.Parse(data)
	if err != nil {
		fmt.Fprintf(stderr, "plan: %v\n", err)
		return 2
	}

	p, err := spec.Compile(s)
	if err != nil {
		fmt.Fprintf(stderr, "plan: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "%s\n", p.Hash)
	return 0
}
