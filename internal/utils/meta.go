package utils

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// DecodeJSONMap decodes a JSON object; empty input yields an empty map.
func DecodeJSONMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func GetString(meta map[string]any, path ...string) (string, bool) {
	value, ok := GetValue(meta, path...)
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	if !ok {
		return "", false
	}
	return str, true
}

// GetStringSlice returns the string elements of an array value, skipping non-strings.
func GetStringSlice(meta map[string]any, path ...string) []string {
	value, ok := GetValue(meta, path...)
	if !ok {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case string:
			out = append(out, typed)
		case map[string]any:
			// {"src": "..."} / {"url": "..."} shaped entries from some scrapers.
			if src, ok := typed["src"].(string); ok {
				out = append(out, src)
			} else if u, ok := typed["url"].(string); ok {
				out = append(out, u)
			}
		}
	}
	return out
}

func GetValue(meta map[string]any, path ...string) (any, bool) {
	current := any(meta)
	for _, key := range path {
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[key]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, false
			}
			current = typed[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// Slugify lowercases value and collapses every run of non-alphanumerics into one dash.
func Slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 80 {
		slug = strings.TrimSuffix(slug[:80], "-")
	}
	return slug
}
