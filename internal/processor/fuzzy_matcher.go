// fuzzy_matcher.go - Ranks catalog names and aliases against a normalized query

package processor

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball"
)

// Score weights: order-independent token overlap dominates, whole-string edit ratio breaks near ties
const (
	TokenSetWeight  = 0.65
	EditRatioWeight = 0.35

	// tokens closer than this by edit ratio count as partial overlap
	tokenSimilarityFloor = 0.8
	// shortest prefix accepted as an invoice abbreviation ("пшен" for "пшеничная")
	minAbbreviationRunes = 3
)

// Candidate is one searchable surface form of a catalog entity
type Candidate struct {
	Text     string `json:"text"`
	EntityID uint   `json:"entity_id"`
}

// Match is one ranked entity
type Match struct {
	EntityID uint    `json:"entity_id"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"` // surface form that produced the score
}

// FuzzyMatcher scores normalized strings. The zero value is ready to use.
type FuzzyMatcher struct {
	// Language of the snowball stemmer; empty means "russian"
	Language string
}

// NewFuzzyMatcher returns a matcher using the Russian stemmer
func NewFuzzyMatcher() *FuzzyMatcher {
	return &FuzzyMatcher{Language: "russian"}
}

// Match returns one row per entity, best score first, ties in candidate order
func (m *FuzzyMatcher) Match(query string, candidates []Candidate) []Match {
	if len(candidates) == 0 {
		return []Match{}
	}

	queryTokens := strings.Fields(query)
	stems := make(map[string]string)

	best := make(map[uint]int, len(candidates))
	results := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		score := m.score(query, queryTokens, c.Text, stems)
		if idx, seen := best[c.EntityID]; seen {
			if score > results[idx].Score {
				results[idx].Score = score
				results[idx].Text = c.Text
			}
			continue
		}
		best[c.EntityID] = len(results)
		results = append(results, Match{EntityID: c.EntityID, Score: score, Text: c.Text})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// Score compares two normalized strings
func (m *FuzzyMatcher) Score(a, b string) float64 {
	return m.score(a, strings.Fields(a), b, make(map[string]string))
}

func (m *FuzzyMatcher) score(query string, queryTokens []string, text string, stems map[string]string) float64 {
	if query == text {
		return 1
	}
	raw := TokenSetWeight*m.tokenSet(queryTokens, strings.Fields(text), stems) +
		EditRatioWeight*indelRatio(query, text)
	return math.Round(raw*10000) / 10000
}

// tokenSet pairs every token greedily with its best unused counterpart and
// returns the Dice coefficient over the pair scores
func (m *FuzzyMatcher) tokenSet(a, b []string, stems map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	used := make([]bool, len(b))
	var overlap float64
	for _, ta := range a {
		bestIdx, bestScore := -1, 0.0
		for j, tb := range b {
			if used[j] {
				continue
			}
			if s := m.tokenScore(ta, tb, stems); s > bestScore {
				bestIdx, bestScore = j, s
				if s == 1 {
					break
				}
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			overlap += bestScore
		}
	}
	return 2 * overlap / float64(len(a)+len(b))
}

func (m *FuzzyMatcher) tokenScore(a, b string, stems map[string]string) float64 {
	if a == b {
		return 1
	}
	// pack sizes and article numbers differ by one digit ("100" vs "1000")
	if hasDigit(a) || hasDigit(b) {
		return 0
	}
	if isAbbreviation(a, b) || isAbbreviation(b, a) {
		return 1
	}
	if sa, sb := m.stem(a, stems), m.stem(b, stems); sa != "" && sa == sb {
		return 1
	}
	if r := levenshteinRatio(a, b); r >= tokenSimilarityFloor {
		return r
	}
	return 0
}

func hasDigit(token string) bool {
	return strings.IndexFunc(token, unicode.IsDigit) >= 0
}

// isAbbreviation reports whether short is a truncated form of long
func isAbbreviation(short, long string) bool {
	return utf8.RuneCountInString(short) >= minAbbreviationRunes &&
		utf8.RuneCountInString(short) < utf8.RuneCountInString(long) &&
		strings.HasPrefix(long, short)
}

func (m *FuzzyMatcher) stem(word string, cache map[string]string) string {
	if s, ok := cache[word]; ok {
		return s
	}
	lang := m.Language
	if lang == "" {
		lang = "russian"
	}
	s, err := snowball.Stem(word, lang, true)
	if err != nil {
		// unsupported language: fall back to exact token comparison
		s = ""
	}
	cache[word] = s
	return s
}
