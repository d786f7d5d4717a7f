package models

import (
	"strings"
	"time"
)

const (
	// MaxTagLength is the longest a single tag may be, in characters.
	MaxTagLength = 50
	// MaxTagsLength bounds the comma-joined tag list, in characters.
	MaxTagsLength = 100

	tagSeparator = ","
)

// NormalizeTag trims a tag and cuts it to MaxTagLength characters.
func NormalizeTag(tag string) string {
	return truncate(strings.TrimSpace(tag), MaxTagLength)
}

// NormalizeTags normalizes every tag and drops the ones left empty.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = NormalizeTag(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// EncodeTags joins tags with a comma and cuts the result to MaxTagsLength
// characters. The cut may split the last tag.
func EncodeTags(tags []string) string {
	return truncate(strings.Join(tags, tagSeparator), MaxTagsLength)
}

// DecodeTags splits an encoded tag list, dropping empty segments. It never
// returns nil.
func DecodeTags(encoded string) []string {
	tags := []string{}
	for _, tag := range strings.Split(encoded, tagSeparator) {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ParseDueDate accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date
// (midnight UTC). An empty string means no due date.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, ErrInvalidDueDate
}

// FormatDueDate renders a due date for storage; nil becomes "".
func FormatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
