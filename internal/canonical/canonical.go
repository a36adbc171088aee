package canonical

import (
	"net/url"
	"sort"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"

	"horse.fit/stash/internal/catalog"
)

// Result is the outcome of canonicalizing one raw URL.
type Result struct {
	Normalized string
	Domain     string
	Platform   string
}

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"ref_url": {},
	"si":      {},
	"igshid":  {},
}

var spotifyResourceTypes = map[string]struct{}{
	"track":    {},
	"album":    {},
	"artist":   {},
	"playlist": {},
	"episode":  {},
	"show":     {},
	"user":     {},
}

// Canonicalize maps a raw URL or platform URI to its normalized form plus
// a detected platform tag. It never fails: input that cannot be parsed is
// returned verbatim with an empty domain and platform, so a malformed URL
// can still flow through the save pipeline.
func Canonicalize(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Normalized: raw}
	}

	trimmed = rewritePlatformURI(trimmed)

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || parsed.Scheme == "" {
		return Result{Normalized: raw}
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")

	scheme := "https"
	if isLoopbackHost(host) {
		scheme = strings.ToLower(parsed.Scheme)
	}

	parsed.Scheme = scheme
	parsed.Host = host
	parsed.Fragment = ""
	parsed.RawFragment = ""

	query := parsed.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			query.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			query.Del(key)
		}
	}

	platform := detectPlatform(host)
	applyPlatformRules(parsed, query, platform)

	parsed.RawQuery = encodeSortedQuery(query)
	parsed.Path = trimTrailingSlash(collapseSlashes(parsed.EscapedPath()))
	parsed.RawPath = ""

	return Result{
		Normalized: parsed.String(),
		Domain:     registeredDomain(parsed.Hostname()),
		Platform:   platform,
	}
}

// rewritePlatformURI converts platform-native URI schemes to their
// canonical web form before generic parsing. Spotify resource URIs are
// colon-delimited: spotify:track:ID, spotify:user:UID:playlist:PID.
func rewritePlatformURI(raw string) string {
	if !strings.HasPrefix(strings.ToLower(raw), "spotify:") {
		return raw
	}

	parts := strings.Split(raw, ":")
	if len(parts) == 3 {
		resource := strings.ToLower(strings.TrimSpace(parts[1]))
		id := strings.TrimSpace(parts[2])
		if _, ok := spotifyResourceTypes[resource]; ok && id != "" {
			return "https://open.spotify.com/" + resource + "/" + id
		}
	}
	if len(parts) == 5 && strings.EqualFold(parts[1], "user") && strings.EqualFold(parts[3], "playlist") {
		user := strings.TrimSpace(parts[2])
		playlist := strings.TrimSpace(parts[4])
		if user != "" && playlist != "" {
			return "https://open.spotify.com/user/" + user + "/playlist/" + playlist
		}
	}
	return raw
}

func detectPlatform(host string) string {
	switch {
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return catalog.PlatformYouTube
	case host == "spotify.com" || strings.HasSuffix(host, ".spotify.com"):
		return catalog.PlatformSpotify
	case host == "twitter.com" || host == "x.com" || strings.HasSuffix(host, ".twitter.com") || strings.HasSuffix(host, ".x.com"):
		return catalog.PlatformTwitter
	case strings.HasSuffix(host, ".substack.com"):
		return catalog.PlatformSubstack
	default:
		return catalog.PlatformWeb
	}
}

// applyPlatformRules runs after the generic pass and may rewrite host,
// path, and surviving query parameters.
func applyPlatformRules(parsed *url.URL, query url.Values, platform string) {
	switch platform {
	case catalog.PlatformYouTube:
		applyYouTubeRules(parsed, query)
	case catalog.PlatformSpotify:
		applySpotifyRules(parsed, query)
	case catalog.PlatformTwitter:
		applyTwitterRules(parsed, query)
	case catalog.PlatformSubstack:
		applySubstackRules(query)
	}
}

func applyYouTubeRules(parsed *url.URL, query url.Values) {
	host := parsed.Hostname()
	path := collapseSlashes(parsed.EscapedPath())

	videoID := ""
	switch {
	case host == "youtu.be":
		videoID = firstPathSegment(path)
	case strings.HasPrefix(path, "/embed/"):
		videoID = segmentAfter(path, "/embed/")
	case strings.HasPrefix(path, "/shorts/"):
		videoID = segmentAfter(path, "/shorts/")
	case strings.HasPrefix(path, "/live/"):
		videoID = segmentAfter(path, "/live/")
	case strings.HasPrefix(path, "/v/"):
		videoID = segmentAfter(path, "/v/")
	case path == "/watch":
		videoID = query.Get("v")
	}

	parsed.Host = "youtube.com"

	if videoID == "" {
		query.Del("ab_channel")
		return
	}

	// Keep only the watch id, the playlist, and time offsets.
	kept := url.Values{}
	kept.Set("v", videoID)
	if list := query.Get("list"); list != "" {
		kept.Set("list", list)
	}
	if t := query.Get("t"); t != "" {
		kept.Set("t", t)
	}
	if start := query.Get("start"); start != "" && query.Get("t") == "" {
		kept.Set("t", start)
	}

	parsed.Path = "/watch"
	parsed.RawPath = ""
	replaceValues(query, kept)
}

func applySpotifyRules(parsed *url.URL, query url.Values) {
	parsed.Host = "open.spotify.com"

	segments := pathSegments(parsed.EscapedPath())
	// Locale prefixes (intl-es) and embed wrappers precede the resource.
	for len(segments) > 0 {
		first := strings.ToLower(segments[0])
		if strings.HasPrefix(first, "intl-") || first == "embed" || first == "embed-podcast" {
			segments = segments[1:]
			continue
		}
		break
	}

	if len(segments) >= 4 && strings.EqualFold(segments[0], "user") && strings.EqualFold(segments[2], "playlist") {
		parsed.Path = "/user/" + segments[1] + "/playlist/" + segments[3]
		parsed.RawPath = ""
	} else if len(segments) >= 2 {
		resource := strings.ToLower(segments[0])
		if _, ok := spotifyResourceTypes[resource]; ok {
			parsed.Path = "/" + resource + "/" + segments[1]
			parsed.RawPath = ""
		}
	}

	// Spotify query parameters are share context, never content identity.
	replaceValues(query, url.Values{})
}

func applyTwitterRules(parsed *url.URL, query url.Values) {
	parsed.Host = "x.com"
	query.Del("s")
	query.Del("t")
}

func applySubstackRules(query url.Values) {
	// Substack appends a short referral code to shared post links.
	query.Del("r")
	query.Del("triedRedirect")
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost")
}

func registeredDomain(host string) string {
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil || domain == "" {
		return host
	}
	return domain
}

func encodeSortedQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	reordered := url.Values{}
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, value := range values {
			reordered.Add(key, value)
		}
	}
	return reordered.Encode()
}

func replaceValues(dst url.Values, src url.Values) {
	for key := range dst {
		delete(dst, key)
	}
	for key, values := range src {
		dst[key] = values
	}
}

func collapseSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}

func trimTrailingSlash(path string) string {
	if strings.HasSuffix(path, "/") && path != "/" {
		return strings.TrimSuffix(path, "/")
	}
	return path
}

func pathSegments(path string) []string {
	parts := strings.Split(collapseSlashes(path), "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

func firstPathSegment(path string) string {
	segments := pathSegments(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

func segmentAfter(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
