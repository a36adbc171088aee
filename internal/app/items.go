package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/cli"
	"horse.fit/stash/internal/db"
)

func runItems(args []string) int {
	fs := flag.NewFlagSet("items", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	platform := fs.String("platform", "", "Filter by platform")
	limit := fs.Int("limit", 50, "Maximum rows to list")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "items does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	platformFilter := strings.TrimSpace(strings.ToLower(*platform))
	if platformFilter != "" && !catalog.IsKnownPlatform(platformFilter) {
		fmt.Fprintf(os.Stderr, "Unknown platform: %s\n", platformFilter)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	items, err := db.NewContentStore(pool).ListItems(ctx, db.ContentListOptions{
		Platform: platformFilter,
		Limit:    *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list items: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.Platform,
			truncateForTable(item.Title, 60),
			item.CreatorName,
			fmt.Sprintf("%d", len(item.CrossPlatformMatches)),
			formatUTCTimestampPtr(item.PublishedAt),
		})
	}
	if err := writeTable([]string{"content_id", "platform", "title", "creator", "links", "published_at"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
