package timeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransform strips diacritics (NFD decompose, drop combining marks,
// NFC recompose) so "café" and "cafe" match the same query token.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func fold(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Search runs a tokenised, case/diacritic-insensitive match over each
// span's title and JSON payload, optionally scoped to tenant.
func (s *Store) Search(ctx context.Context, text, tenant string, limit int) ([]Entry, error) {
	queryTokens := tokenize(text)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	candidates, err := s.listAll(ctx, Query{TenantID: tenant})
	if err != nil {
		return nil, fmt.Errorf("timeline: search: %w", err)
	}

	var matches []Entry
	for _, entry := range candidates {
		haystack := tokenize(entry.Span.Title + " " + string(entry.Span.Data))
		if containsAll(haystack, queryTokens) {
			matches = append(matches, entry)
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, t := range haystack {
		set[t] = struct{}{}
	}
	for _, needle := range needles {
		if _, ok := set[needle]; !ok {
			return false
		}
	}
	return true
}
