package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/stash/internal/cli"
	"horse.fit/stash/internal/db"
)

func runCreators(args []string) int {
	fs := flag.NewFlagSet("creators", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "creators does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	creators, err := db.NewCreatorStore(pool).ListCreators(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list creators: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(creators); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(creators))
	for _, creator := range creators {
		rows = append(rows, []string{
			creator.ID,
			truncateForTable(creator.Name, 40),
			creator.Handle,
			strings.Join(creator.Platforms, ","),
			fmt.Sprintf("%d", len(creator.ExternalLinks)),
		})
	}
	if err := writeTable([]string{"creator_id", "name", "handle", "platforms", "links"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
