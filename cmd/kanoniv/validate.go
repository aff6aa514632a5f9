package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kanoniv/kanoniv/pkg/kerrors"
	"github.com/kanoniv/kanoniv/pkg/spec"
)

func runValidate(_ context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	specPath := fs.String("spec", "", "path to the identity spec YAML (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *specPath == "" {
		fmt.Fprintln(stderr, "validate: --spec is required")
		return 2
	}

	data, err := os.ReadFile(*specPath)
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 3
	}

	s, err := spec.Parse(data)
	if err != nil {
		var verr *kerrors.SpecValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(stderr, "validate: %d issue(s) found:\n", len(verr.Issues))
			for _, issue := range verr.Issues {
				fmt.Fprintf(stderr, "  %s\n", issue)
			}
			return 2
		}
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "valid: entity=%s sources=%d rules=%d\n", s.Entity, len(s.Sources), len(s.Rules))
	return 0
}
