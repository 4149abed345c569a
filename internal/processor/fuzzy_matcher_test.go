package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAbbreviatedProduct(t *testing.T) {
	m := NewFuzzyMatcher()

	score := m.Score("мука пшен в/с", "мука пшеничная в/с")
	assert.InDelta(t, 0.9435, score, 0.0001)
	assert.GreaterOrEqual(t, score, 0.92)
}

func TestScoreBounds(t *testing.T) {
	m := NewFuzzyMatcher()

	assert.Equal(t, 1.0, m.Score("сахар песок", "сахар песок"))
	assert.Less(t, m.Score("сахар", "мука пшеничная в/с"), 0.7)
	assert.Greater(t, m.Score("пшеничная мука", "мука пшеничная"), 0.8)
	assert.GreaterOrEqual(t, m.Score("молока", "молоко"), 0.8)
}

func TestScoreKeepsPackSizesApart(t *testing.T) {
	m := NewFuzzyMatcher()

	pairs := [][2]string{
		{"соль поваренная 1000", "соль поваренная 100"},
		{"сок яблочный 0,25", "сок яблочный 0,2"},
		{"вода 1,5л", "вода 1,5"},
	}
	for _, p := range pairs {
		score := m.Score(p[0], p[1])
		assert.Less(t, score, 0.92, "%q vs %q", p[0], p[1])
		assert.Less(t, m.Score(p[1], p[0]), 0.92, "%q vs %q", p[1], p[0])
	}

	// close sizes stay a suggestion for a human
	assert.GreaterOrEqual(t, m.Score("соль поваренная 1000", "соль поваренная 100"), 0.70)
	assert.Equal(t, 0.0, m.tokenScore("1000", "100", map[string]string{}))
	assert.Equal(t, 1.0, m.tokenScore("82,5", "82,5", map[string]string{}))
}

func TestMatchEmptyCandidates(t *testing.T) {
	got := NewFuzzyMatcher().Match("мука", nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMatchOrdersByScore(t *testing.T) {
	candidates := []Candidate{
		{Text: "сахар песок", EntityID: 1},
		{Text: "мука пшеничная в/с", EntityID: 2},
		{Text: "мука ржаная", EntityID: 3},
	}

	got := NewFuzzyMatcher().Match("мука пшен в/с", candidates)
	require.Len(t, got, 3)
	assert.Equal(t, uint(2), got[0].EntityID)
	assert.Equal(t, "мука пшеничная в/с", got[0].Text)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	assert.GreaterOrEqual(t, got[1].Score, got[2].Score)
}

func TestMatchTiesKeepInsertionOrder(t *testing.T) {
	candidates := []Candidate{
		{Text: "кефир", EntityID: 9},
		{Text: "кефир", EntityID: 4},
		{Text: "кефир", EntityID: 7},
	}

	got := NewFuzzyMatcher().Match("кефир 1%", candidates)
	require.Len(t, got, 3)
	assert.Equal(t, []uint{9, 4, 7}, []uint{got[0].EntityID, got[1].EntityID, got[2].EntityID})
}

func TestMatchKeepsBestRowPerEntity(t *testing.T) {
	candidates := []Candidate{
		{Text: "молоко ультрапастер", EntityID: 1},
		{Text: "мука в/с", EntityID: 2},
		{Text: "мука пшен в/с", EntityID: 1},
	}

	got := NewFuzzyMatcher().Match("мука пшен в/с", candidates)
	require.Len(t, got, 2)
	assert.Equal(t, uint(1), got[0].EntityID)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, "мука пшен в/с", got[0].Text)
}

func TestMatchIsDeterministic(t *testing.T) {
	candidates := []Candidate{
		{Text: "масло сливочное 82,5", EntityID: 1},
		{Text: "масло подсолнечное", EntityID: 2},
		{Text: "масло слив", EntityID: 3},
	}
	m := NewFuzzyMatcher()

	assert.Equal(t, m.Match("масло сливоч 82,5", candidates), m.Match("масло сливоч 82,5", candidates))
}

func TestLevenshteinAndIndel(t *testing.T) {
	assert.Equal(t, 4, levenshteinDistance([]rune("котёнок"), []rune("кот")))
	assert.Equal(t, 1.0, levenshteinRatio("", ""))
	assert.InDelta(t, 26.0/31.0, indelRatio("мука пшен в/с", "мука пшеничная в/с"), 1e-9)
	assert.Equal(t, 0.0, indelRatio("абв", "где"))
}
