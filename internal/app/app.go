package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "canonicalize":
		return runCanonicalize(args[1:])
	case "save":
		return runSave(args[1:])
	case "resolve":
		return runResolve(args[1:])
	case "items":
		return runItems(args[1:])
	case "creators":
		return runCreators(args[1:])
	case "stats":
		return runStats(args[1:])
	case "hash-token":
		return runHashToken(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "stash CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  stash <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health        Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  canonicalize  Normalize a URL without touching the database")
	fmt.Fprintln(os.Stderr, "  save          Run the save pipeline for a payload file")
	fmt.Fprintln(os.Stderr, "  resolve       Dry-run duplicate detection for a payload file")
	fmt.Fprintln(os.Stderr, "  items         List stored content items")
	fmt.Fprintln(os.Stderr, "  creators      List resolved creator identities")
	fmt.Fprintln(os.Stderr, "  stats         Show catalog statistics")
	fmt.Fprintln(os.Stderr, "  hash-token    Generate a bcrypt hash for API_TOKEN_BCRYPT")
	fmt.Fprintln(os.Stderr, "  serve         Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"stash <command> -h\" for command-specific flags.")
}
