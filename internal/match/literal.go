package match

import "strings"

// Input trims surrounding whitespace and a leading byte order mark from free text.
// Interior text is left untouched so phrase matching stays literal.
func Input(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "\ufeff")
	return strings.TrimSpace(text)
}

// Hits returns the phrases that occur in text as literal substrings, in phrase order.
// Matching is case-sensitive and script-agnostic; empty phrases never match.
func Hits(text string, phrases []string) []string {
	var out []string
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(text, phrase) {
			out = append(out, phrase)
		}
	}
	return out
}

// DistinctHits is Hits with repeated phrases counted once.
func DistinctHits(text string, phrases []string) []string {
	seen := make(map[string]struct{}, len(phrases))
	var out []string
	for _, phrase := range Hits(text, phrases) {
		if _, ok := seen[phrase]; ok {
			continue
		}
		seen[phrase] = struct{}{}
		out = append(out, phrase)
	}
	return out
}
