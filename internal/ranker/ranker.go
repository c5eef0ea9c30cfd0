// Package ranker orders wardrobe add-on candidates against AI "elevate"
// suggestions. Pure functions, no side effects; scoring is deterministic so
// the UI renders the same order for the same inputs every time.
package ranker

import (
	"sort"
	"strings"
	"unicode"

	"github.com/closetmind/stylescan/internal/models"
)

const (
	categoryBaseScore = 100
	priorityBonusStep = 20
	priorityBonusMax  = 40
	attributeScore    = 10
	attributeScoreCap = 30
)

// Rank returns items ordered best-first against the suggestions. The input
// slice is never mutated. Ties keep the original input order. A nil or
// empty suggestion list degrades to attribute-less scoring, which leaves
// the input order intact.
func Rank(items []models.AddOnItem, suggestions []models.ElevateBullet) []models.AddOnItem {
	if len(items) == 0 {
		return []models.AddOnItem{}
	}

	categories := wantedCategories(suggestions)
	attributes := wantedAttributes(suggestions)

	type scored struct {
		item  models.AddOnItem
		score int
	}
	ranked := make([]scored, len(items))
	for i, item := range items {
		ranked[i] = scored{item: item, score: scoreItem(item, categories, attributes)}
	}

	// SliceStable preserves input index order among equal scores.
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	out := make([]models.AddOnItem, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

// Score exposes the per-item score for debugging and tests.
func Score(item models.AddOnItem, suggestions []models.ElevateBullet) int {
	return scoreItem(item, wantedCategories(suggestions), wantedAttributes(suggestions))
}

func scoreItem(item models.AddOnItem, categories []string, attributes map[string]bool) int {
	score := 0

	cat := normalize(item.Category)
	for rank, wanted := range categories {
		if cat == wanted {
			score += categoryBaseScore
			bonus := priorityBonusMax - priorityBonusStep*rank
			if bonus > 0 {
				score += bonus
			}
			break
		}
	}

	if len(attributes) > 0 {
		tokens := itemTokens(item)
		matched := 0
		for attr := range attributes {
			if tokens[attr] {
				matched++
			}
		}
		bonus := matched * attributeScore
		if bonus > attributeScoreCap {
			bonus = attributeScoreCap
		}
		score += bonus
	}

	return score
}

// wantedCategories is the ordered, de-duplicated category list. A duplicate
// collapses into its first occurrence's priority slot.
func wantedCategories(suggestions []models.ElevateBullet) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range suggestions {
		c := normalize(s.Category)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// wantedAttributes is the flat token set after synonym expansion: every
// member of a matched synonym group is wanted, not just the literal token.
func wantedAttributes(suggestions []models.ElevateBullet) map[string]bool {
	wanted := make(map[string]bool)
	for _, s := range suggestions {
		for _, attr := range s.Attributes {
			for _, token := range tokenize(attr) {
				wanted[token] = true
				for _, syn := range synonyms[token] {
					wanted[syn] = true
				}
			}
		}
	}
	return wanted
}

// itemTokens is the whole-token index of everything matchable on an item:
// color names, the detected label, and user style tags. Whole tokens keep
// "tan" from matching inside "tangerine".
func itemTokens(item models.AddOnItem) map[string]bool {
	tokens := make(map[string]bool)
	add := func(s string) {
		for _, t := range tokenize(s) {
			tokens[t] = true
		}
	}
	for _, c := range item.Colors {
		add(c)
	}
	add(item.DetectedLabel)
	for _, tag := range item.UserStyleTags {
		add(tag)
	}
	return tokens
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
