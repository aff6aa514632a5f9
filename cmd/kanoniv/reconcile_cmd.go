package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kanoniv/kanoniv/pkg/engineconfig"
	"github.com/kanoniv/kanoniv/pkg/ingest"
	"github.com/kanoniv/kanoniv/pkg/kerrors"
	"github.com/kanoniv/kanoniv/pkg/reconcile"
	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/kanoniv/kanoniv/pkg/spec"
)

// runReconcileCmd loads a spec and one CSV file per configured source
// (named "<source_name>.csv" under --sources), ingests every row, runs the
// full pipeline, and writes a .knv snapshot to --out.
func runReconcileCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	specPath := fs.String("spec", "", "path to the identity spec YAML (required)")
	sourcesDir := fs.String("sources", "", "directory containing one <source_name>.csv per configured source (required)")
	outPath := fs.String("out", "", "output path for the .knv snapshot (required)")
	feedbackPath := fs.String("feedback", "", "optional path to a JSON array of supervised labels: [{\"a\":{\"source_name\":...,\"external_id\":...},\"b\":{...},\"label\":\"match\"|\"no_match\"}]")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *specPath == "" || *sourcesDir == "" || *outPath == "" {
		fmt.Fprintln(stderr, "reconcile: --spec, --sources, and --out are all required")
		return 2
	}

	s, err := loadSpec(*specPath)
	if err != nil {
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 2
	}
	plan, err := spec.Compile(s)
	if err != nil {
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 2
	}

	store := record.NewStore()
	for _, src := range s.Sources {
		rows, columns, err := readCSV(filepath.Join(*sourcesDir, src.Name+".csv"))
		if err != nil {
			fmt.Fprintf(stderr, "reconcile: reading source %q: %v\n", src.Name, err)
			return 3
		}
		if err := ingest.ValidateSchema(src, columns); err != nil {
			fmt.Fprintf(stderr, "reconcile: %v\n", err)
			return 2
		}
		recs, failures, err := ingest.Source(src, s.Entity, rows)
		if err != nil {
			fmt.Fprintf(stderr, "reconcile: %v\n", err)
			return 3
		}
		for _, f := range failures {
			fmt.Fprintf(stderr, "reconcile: %s: %v\n", src.Name, f)
		}
		for _, r := range recs {
			if err := store.Add(r); err != nil {
				fmt.Fprintf(stderr, "reconcile: %v\n", err)
				return 3
			}
		}
	}

	var feedback []reconcile.FeedbackPair
	if *feedbackPath != "" {
		feedback, err = readFeedback(*feedbackPath)
		if err != nil {
			fmt.Fprintf(stderr, "reconcile: %v\n", err)
			return 2
		}
	}

	res, err := reconcile.Run(ctx, plan, store, engineconfig.Load(), feedback)
	if err != nil {
		var cancelled *kerrors.Cancelled
		if errors.As(err, &cancelled) {
			return 4
		}
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 3
	}

	data, err := reconcile.Marshal(res, store)
	if err != nil {
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 3
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 3
	}

	fmt.Fprintf(stdout, "clusters=%d golden_records=%d spec_hash=%s\n", len(res.Clusters.Clusters), len(res.Golden), res.SpecHash)
	return 0
}

// feedbackEntry is the on-disk JSON shape for one supervised label, read
// via --feedback.
type feedbackEntry struct {
	A     record.SourceKey        `json:"a"`
	B     record.SourceKey        `json:"b"`
	Label reconcile.FeedbackLabel `json:"label"`
}

func readFeedback(path string) ([]reconcile.FeedbackPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []feedbackEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing feedback file: %w", err)
	}
	out := make([]reconcile.FeedbackPair, len(entries))
	for i, e := range entries {
		out[i] = reconcile.FeedbackPair{A: e.A, B: e.B, Label: e.Label}
	}
	return out, nil
}

func readCSV(path string) ([]ingest.Row, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, err
	}

	var rows []ingest.Row
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		columns := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(fields) {
				columns[col] = fields[i]
			}
		}
		rows = append(rows, ingest.Row{
			ExternalID:  columns["external_id"],
			LastUpdated: time.Now(),
			Columns:     columns,
		})
	}
	return rows, header, nil
}
