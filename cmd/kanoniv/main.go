package main

import (
	"context"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, factored out from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	ctx := context.Background()

	switch args[1] {
	case "validate":
		return runValidate(ctx, args[2:], stdout, stderr)
	case "plan":
		return runPlan(ctx, args[2:], stdout, stderr)
	case "diff":
		return runDiff(ctx, args[2:], stdout, stderr)
	case "reconcile":
		return runReconcileCmd(ctx, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	io.WriteString(w, `kanoniv - deterministic entity resolution

USAGE:
  kanoniv <command> [flags]

COMMANDS:
  validate   Parse and validate an identity spec (--spec)
  plan       Compile a spec and print its content hash (--spec)
  diff       Compare two spec versions (--from, --to)
  reconcile  Run resolution over a batch of sources (--spec, --sources, --out)
  help       Show this help
`)
}
