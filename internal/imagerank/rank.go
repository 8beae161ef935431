// Package imagerank orders candidate image URLs by inferred resolution so a
// document's primary image can be picked.
package imagerank

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Candidate is a surviving image URL with its derived score.
type Candidate struct {
	URL               string
	SizeRank          int
	IsPreferredFormat bool
}

// Named size tokens found in size query parameters.
var sizeTokens = map[string]int{
	"orig":   10000,
	"large":  5000,
	"medium": 4000,
	"small":  1000,
	"thumb":  500,
	"tiny":   100,
}

// Filename suffix fallbacks, checked in order.
var suffixRanks = []struct {
	suffix string
	rank   int
}{
	{"_bigger.", 75},
	{"_normal.", 50},
	{"_mini.", 25},
}

var sizeParams = []string{"name", "size", "s", "sz", "dimensions"}

var (
	dimensionRe = regexp.MustCompile(`^(\d{1,5})[xX×](\d{1,5})$`)
	spacerRe    = regexp.MustCompile(`(^|[^0-9])1x1([^0-9]|$)`)
)

var excludedPathParts = []string{
	"/avatar", "avatar_", "/profile_images", "/profile-", "profile_pic",
	"/banner", "banner_", "spacer.", "pixel.gif", "blank.gif", "/emoji/",
}

var preferredFormats = map[string]bool{
	"jpg":   true,
	"jpeg":  true,
	"pjpeg": true,
}

// Rank filters out non-content images and returns the rest sorted best-first.
// Ties on SizeRank prefer photographic formats, then keep input order.
func Rank(urls []string) []Candidate {
	out := make([]Candidate, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" || Excluded(raw) {
			continue
		}
		out = append(out, Candidate{
			URL:               raw,
			SizeRank:          SizeRank(raw),
			IsPreferredFormat: preferredFormat(raw),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SizeRank != out[j].SizeRank {
			return out[i].SizeRank > out[j].SizeRank
		}
		return out[i].IsPreferredFormat && !out[j].IsPreferredFormat
	})
	return out
}

// Primary returns the best candidate, if any survived filtering.
func Primary(urls []string) (Candidate, bool) {
	ranked := Rank(urls)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

// Excluded reports whether raw is a known non-content image.
func Excluded(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "data:") {
		return true
	}
	p := lower
	if u, err := url.Parse(lower); err == nil {
		if u.Path != "" {
			p = u.Path
		}
		if w, h, ok := queryDimensions(u.Query()); ok && (w <= 1 || h <= 1) {
			return true
		}
	}
	if strings.HasSuffix(p, ".svg") || strings.Contains(lower, "format=svg") {
		return true
	}
	for _, part := range excludedPathParts {
		if strings.Contains(p, part) {
			return true
		}
	}
	return spacerRe.MatchString(path.Base(p))
}

// SizeRank scores raw: size query parameter first, then filename suffix, else 0.
func SizeRank(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return suffixRank(raw)
	}
	q := u.Query()
	for _, key := range sizeParams {
		value := strings.ToLower(strings.TrimSpace(q.Get(key)))
		if value == "" {
			continue
		}
		if rank, ok := sizeTokens[value]; ok {
			return rank
		}
		if w, h, ok := parseDimensions(value); ok {
			return w * h
		}
	}
	return suffixRank(u.Path)
}

// queryDimensions returns the first WxH value found in a size parameter.
func queryDimensions(q url.Values) (int, int, bool) {
	for _, key := range sizeParams {
		if w, h, ok := parseDimensions(strings.TrimSpace(q.Get(key))); ok {
			return w, h, true
		}
	}
	return 0, 0, false
}

func parseDimensions(value string) (int, int, bool) {
	m := dimensionRe.FindStringSubmatch(value)
	if m == nil {
		return 0, 0, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return w, h, true
}

func suffixRank(p string) int {
	lower := strings.ToLower(p)
	for _, s := range suffixRanks {
		if strings.Contains(lower, s.suffix) {
			return s.rank
		}
	}
	return 0
}

func preferredFormat(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if format := strings.ToLower(u.Query().Get("format")); format != "" {
		return preferredFormats[format]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	return preferredFormats[ext]
}
