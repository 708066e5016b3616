package models

import (
	"regexp"
	"strings"
)

var (
	tagPattern     = regexp.MustCompile(`(?:^|[^\w#])#([\p{L}\d][\p{L}\d_-]*)`)
	mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([\p{L}\d][\p{L}\d_.-]*)`)
	markupPattern  = regexp.MustCompile("[*_~`>#]+|!?\\[([^\\]]*)\\]\\([^)]*\\)")
)

// ExtractTags returns the hashtags referenced in body, lowercased, deduplicated,
// in order of first appearance. Tags are recomputed on every save; they are
// never edited independently.
func ExtractTags(body string) []string {
	matches := tagPattern.FindAllStringSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ExtractMentions returns the @-mentions referenced in body, deduplicated,
// in order of first appearance. Case is preserved.
func ExtractMentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// StripMarkup removes lightweight rich-text markup and whitespace from body,
// leaving only readable text. The empty-entry guard uses this to decide
// whether a body is really blank.
func StripMarkup(body string) string {
	stripped := markupPattern.ReplaceAllString(body, "$1")
	return strings.TrimSpace(stripped)
}
