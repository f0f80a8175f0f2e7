package match

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Suggestion is one ranked candidate from a fuzzy match, scored 0-100.
type Suggestion struct {
	InventoryID uint
	Description string
	Score       float64
}

// Candidate is an inventory item offered to the matcher.
type Candidate struct {
	ID          uint
	Description string
}

// Matcher fuzzy-matches recipe ingredient names against inventory
// descriptions. It has no ambient state: the threshold and candidate list
// are inputs, the ranked suggestions are the output.
type Matcher struct {
	threshold float64
	lev       *metrics.Levenshtein
}

// categoryPrefixes are vendor catalogue prefixes stripped before matching.
var categoryPrefixes = []string{
	"dry goods,", "produce,", "protein,", "dairy,", "frozen,", "n/a bev,", "non con,",
}

// spellingFixes repairs recurring typos in vendor descriptions.
var spellingFixes = map[string]string{
	"chesse":    "cheese",
	"mayonaise": "mayonnaise",
	"chickn":    "chicken",
}

// New creates a matcher with the given acceptance threshold (0-100).
func New(threshold float64) *Matcher {
	return &Matcher{threshold: threshold, lev: metrics.NewLevenshtein()}
}

// Normalize lowercases a name, strips category prefixes, applies the
// spelling map and collapses whitespace.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for _, prefix := range categoryPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			break
		}
	}
	s = strings.ReplaceAll(s, " - ", " ")
	for bad, good := range spellingFixes {
		s = strings.ReplaceAll(s, bad, good)
	}
	return strings.Join(strings.Fields(s), " ")
}

// tokenSort orders the words of a normalized name so word order does not
// affect similarity, matching rapidfuzz's token_sort_ratio behavior.
func tokenSort(s string) string {
	fields := strings.Fields(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// Score computes the token-sort similarity between two names on a 0-100
// scale.
func (m *Matcher) Score(a, b string) float64 {
	sa := tokenSort(Normalize(a))
	sb := tokenSort(Normalize(b))
	if sa == "" || sb == "" {
		return 0
	}
	return strutil.Similarity(sa, sb, m.lev) * 100
}

// FindMatches ranks candidates against an ingredient name and returns the
// top suggestions (at most limit). Suggestions below the acceptance
// threshold are still returned for human review; Accepted reports whether
// the best one clears the bar.
func (m *Matcher) FindMatches(ingredientName string, candidates []Candidate, limit int) []Suggestion {
	if ingredientName == "" || len(candidates) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 3
	}

	suggestions := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, Suggestion{
			InventoryID: c.ID,
			Description: c.Description,
			Score:       m.Score(ingredientName, c.Description),
		})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// Accepted reports whether a suggestion clears the acceptance threshold.
// Below-threshold matches are never auto-applied.
func (m *Matcher) Accepted(s Suggestion) bool {
	return s.Score >= m.threshold
}

// Best returns the single best candidate and whether it may be applied
// automatically.
func (m *Matcher) Best(ingredientName string, candidates []Candidate) (Suggestion, bool) {
	top := m.FindMatches(ingredientName, candidates, 1)
	if len(top) == 0 {
		return Suggestion{}, false
	}
	return top[0], m.Accepted(top[0])
}
