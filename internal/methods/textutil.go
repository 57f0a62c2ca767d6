package methods

import (
	"fmt"
	"strings"
)

// clean normalizes whitespace and strips stray wrapping quotes from
// generated text. Newlines and tabs become spaces so the result is safe for
// tab-separated persistence.
func clean(text string) string {
	replacer := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")
	text = replacer.Replace(text)
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	text = strings.TrimSpace(text)
	text = strings.Trim(text, `"`)
	return strings.Trim(text, "'")
}

// concatRepeat builds (query × repeats) + generated, whitespace-joined.
func concatRepeat(query, generated string, repeats int) string {
	if repeats < 1 {
		repeats = 1
	}
	parts := make([]string, 0, repeats+1)
	for i := 0; i < repeats; i++ {
		parts = append(parts, query)
	}
	parts = append(parts, generated)
	return clean(strings.Join(parts, " "))
}

// concatAdaptive repeats the query proportionally to the generated text
// length, blended by ratio: longer generations earn more query repeats so
// the original terms keep weight in bag-of-words retrieval.
func concatAdaptive(query, generated string, ratio int) string {
	if ratio < 1 {
		ratio = 1
	}
	queryLen := len(query)
	if queryLen == 0 {
		queryLen = 1
	}
	repeats := (len(generated) / queryLen) / ratio
	if repeats < 1 {
		repeats = 1
	}
	var sb strings.Builder
	for i := 0; i < repeats; i++ {
		sb.WriteString(query)
		sb.WriteString(" ")
	}
	sb.WriteString(generated)
	return clean(sb.String())
}

// concatInterleave interleaves the query between each passage: q p1 q p2 ...
func concatInterleave(query string, passages []string) string {
	parts := make([]string, 0, 2*len(passages))
	for _, p := range passages {
		parts = append(parts, query, p)
	}
	return clean(strings.Join(parts, " "))
}

// mergeDedup merges keyword lists from multiple generations, dropping
// duplicates case-insensitively while preserving first-seen order. Each
// generation is split on commas and newlines.
func mergeDedup(generations []string) string {
	seen := make(map[string]bool)
	var merged []string
	for _, gen := range generations {
		for _, token := range strings.FieldsFunc(gen, func(r rune) bool {
			return r == ',' || r == '\n' || r == ';'
		}) {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			key := strings.ToLower(token)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, token)
		}
	}
	return strings.Join(merged, " ")
}

// contextBlob numbers context passages for inclusion in a prompt.
func contextBlob(contexts []string, k int) (string, int) {
	if k > 0 && len(contexts) > k {
		contexts = contexts[:k]
	}
	var sb strings.Builder
	for i, p := range contexts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
	}
	return strings.TrimRight(sb.String(), "\n"), len(contexts)
}

// nonEmpty filters out empty strings, preserving order.
func nonEmpty(values []string) []string {
	kept := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			kept = append(kept, v)
		}
	}
	return kept
}
