package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
)

// Source carries the content attributes the fingerprint is derived from.
// Optional fields left empty still contribute an empty segment so the
// digest arity is stable.
type Source struct {
	Platform      string
	ExternalID    string
	Title         string
	CreatorName   string
	SeriesName    string
	EpisodeNumber *int
}

// Generate derives the deterministic content fingerprint. Two items with
// equal fingerprints are the same content with certainty.
func Generate(src Source) string {
	episode := ""
	if src.EpisodeNumber != nil {
		episode = strconv.Itoa(*src.EpisodeNumber)
	}

	fields := []string{
		strings.ToLower(strings.TrimSpace(src.Platform)),
		strings.TrimSpace(src.ExternalID),
		NormalizeTitle(src.Title),
		NormalizeTitle(src.CreatorName),
		NormalizeTitle(src.SeriesName),
		episode,
	}

	digest := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(digest[:])
}

// NormalizeTitle lowercases, strips everything that is not a letter,
// digit, or space, and collapses runs of whitespace. The result is the
// fuzzy-comparison form stored on every content item.
func NormalizeTitle(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}
