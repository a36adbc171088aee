package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/stash/internal/canonical"
)

func runCanonicalize(args []string) int {
	fs := flag.NewFlagSet("canonicalize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "canonicalize requires at least one URL argument")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	type canonicalOutput struct {
		URL       string `json:"url"`
		Canonical string `json:"canonical"`
		Domain    string `json:"domain,omitempty"`
		Platform  string `json:"platform,omitempty"`
	}

	outputs := make([]canonicalOutput, 0, fs.NArg())
	for _, rawURL := range fs.Args() {
		result := canonical.Canonicalize(rawURL)
		outputs = append(outputs, canonicalOutput{
			URL:       rawURL,
			Canonical: result.Normalized,
			Domain:    result.Domain,
			Platform:  result.Platform,
		})
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(outputs); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(outputs))
	for _, out := range outputs {
		rows = append(rows, []string{
			truncateForTable(out.URL, 60),
			truncateForTable(out.Canonical, 60),
			out.Platform,
		})
	}
	if err := writeTable([]string{"url", "canonical", "platform"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
