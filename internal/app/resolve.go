package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/canonical"
	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/cli"
	"horse.fit/stash/internal/db"
	"horse.fit/stash/internal/fingerprint"
	"horse.fit/stash/internal/match"
	payloadschema "horse.fit/stash/schema"
)

// runResolve shows what the matcher would do for a payload without
// writing anything: the duplicate candidates with scores and reasons,
// and the cross-platform counterpart if one qualifies.
func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	payloadPath := fs.String("payload", "", "Path to a save payload JSON file, or - for stdin")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "resolve does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	raw, err := readPayloadFile(*payloadPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	payload, err := payloadschema.ValidateSaveItemPayload(json.RawMessage(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	item, err := shapeResolveItem(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot shape item: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	contentStore := db.NewContentStore(pool)
	matcher := match.NewMatcher(contentStore, nil, zerolog.Nop())

	candidates, err := matcher.FindDuplicates(ctx, item)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Duplicate lookup failed: %v\n", err)
		return 1
	}
	crossPlatform, err := matcher.FindCrossPlatform(ctx, item)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cross-platform pass failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		output := map[string]any{
			"item_id":    item.ID,
			"candidates": candidates,
		}
		if crossPlatform != nil {
			output["cross_platform"] = map[string]any{
				"content_id": crossPlatform.Item.ID,
				"confidence": crossPlatform.Confidence,
			}
		}
		if err := printJSON(output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if len(candidates) == 0 {
		fmt.Println("no duplicate candidates")
	} else {
		rows := make([][]string, 0, len(candidates))
		for _, candidate := range candidates {
			rows = append(rows, []string{
				candidate.ID,
				fmt.Sprintf("%.2f", candidate.Score),
				strings.Join(candidate.Reasons, "; "),
			})
		}
		if err := writeTable([]string{"content_id", "score", "reasons"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
			return 1
		}
	}

	if crossPlatform != nil {
		fmt.Printf("\ncross-platform counterpart: %s (confidence %.2f)\n",
			crossPlatform.Item.ID, crossPlatform.Confidence)
	}
	return 0
}

func shapeResolveItem(payload *payloadschema.SaveItem) (*catalog.ContentItem, error) {
	canonResult := canonical.Canonicalize(payload.URL)

	platform := canonResult.Platform
	if payload.Platform != nil && strings.TrimSpace(*payload.Platform) != "" {
		platform = strings.ToLower(strings.TrimSpace(*payload.Platform))
	}
	if platform == "" {
		platform = catalog.PlatformWeb
	}

	externalID := ""
	if payload.ExternalID != nil {
		externalID = strings.TrimSpace(*payload.ExternalID)
	}

	item := &catalog.ContentItem{
		Platform:     platform,
		ExternalID:   externalID,
		URL:          strings.TrimSpace(payload.URL),
		CanonicalURL: canonResult.Normalized,
	}
	if externalID != "" {
		item.ID = catalog.ContentID(platform, externalID)
	}
	if payload.Title != nil {
		item.Title = strings.TrimSpace(*payload.Title)
		item.NormalizedTitle = fingerprint.NormalizeTitle(item.Title)
	}
	if payload.Creator != nil {
		item.CreatorName = strings.TrimSpace(payload.Creator.Name)
	}
	if payload.SeriesName != nil {
		item.SeriesName = strings.TrimSpace(*payload.SeriesName)
	}
	if payload.EpisodeNumber != nil {
		value := *payload.EpisodeNumber
		item.EpisodeNumber = &value
	}
	if payload.EpisodeGUID != nil {
		item.EpisodeGUID = strings.TrimSpace(*payload.EpisodeGUID)
	}
	if payload.DurationSeconds != nil {
		item.DurationSeconds = *payload.DurationSeconds
	}
	if payload.PublishedAt != nil {
		published, err := time.Parse(time.RFC3339, strings.TrimSpace(*payload.PublishedAt))
		if err != nil {
			return nil, fmt.Errorf("parse published_at: %w", err)
		}
		utc := published.UTC()
		item.PublishedAt = &utc
	}

	item.ContentFingerprint = fingerprint.Generate(fingerprint.Source{
		Platform:      item.Platform,
		ExternalID:    item.ExternalID,
		Title:         item.Title,
		CreatorName:   item.CreatorName,
		SeriesName:    item.SeriesName,
		EpisodeNumber: item.EpisodeNumber,
	})
	return item, nil
}
