package faq

import (
	"strings"
	"unicode"
)

// =============================================================================
// Lexical Keyword Scorer
// =============================================================================

// Signal weights for the blended lexical score. Exact overlap dominates;
// proper-noun edit distance and question-pattern overlap refine it.
const (
	weightExactOverlap   = 0.4
	weightPartialOverlap = 0.25
	weightProperNoun     = 0.2
	weightQuestionWords  = 0.15
)

// questionWords are interrogatives and comparison terms whose overlap hints
// that two questions ask about the same thing even when content words differ.
var questionWords = map[string]bool{
	"what": true, "when": true, "where": true, "who": true, "why": true,
	"how": true, "which": true, "can": true, "do": true, "does": true,
	"is": true, "are": true, "much": true, "many": true, "long": true,
	"more": true, "less": true, "best": true, "cheapest": true, "difference": true,
}

// keywordScore blends four lexical signals into one [0,1] score comparing a
// query against a stored FAQ question.
func keywordScore(query, question string) float64 {
	queryTokens := tokenize(query)
	questionTokens := tokenize(question)
	if len(queryTokens) == 0 || len(questionTokens) == 0 {
		return 0
	}

	exact := exactOverlap(queryTokens, questionTokens)
	partial := partialOverlap(queryTokens, questionTokens)
	proper := properNounSimilarity(query, question)
	pattern := questionPatternOverlap(queryTokens, questionTokens)

	return weightExactOverlap*exact +
		weightPartialOverlap*partial +
		weightProperNoun*proper +
		weightQuestionWords*pattern
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// exactOverlap is the fraction of query tokens appearing verbatim in the
// question.
func exactOverlap(query, question []string) float64 {
	set := make(map[string]bool, len(question))
	for _, t := range question {
		set[t] = true
	}
	matched := 0
	for _, t := range query {
		if set[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

// partialOverlap counts query tokens that are a substring of some question
// token or vice versa, catching plurals and compound forms.
func partialOverlap(query, question []string) float64 {
	matched := 0
	for _, q := range query {
		if len(q) < 3 {
			continue
		}
		for _, t := range question {
			if len(t) < 3 {
				continue
			}
			if strings.Contains(t, q) || strings.Contains(q, t) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(query))
}

// properNounSimilarity compares capitalized and all-caps tokens (product
// names, place names) by edit distance, tolerating customer typos in exactly
// the tokens that matter most.
func properNounSimilarity(query, question string) float64 {
	queryNouns := properNouns(query)
	questionNouns := properNouns(question)
	if len(queryNouns) == 0 || len(questionNouns) == 0 {
		return 0
	}

	total := 0.0
	for _, qn := range queryNouns {
		best := 0.0
		for _, tn := range questionNouns {
			if sim := editSimilarity(qn, tn); sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(queryNouns))
}

// properNouns returns lowercased tokens that appear capitalized or all-caps
// in the original text, excluding a leading sentence-case word.
func properNouns(s string) []string {
	fields := strings.Fields(s)
	var nouns []string
	for i, f := range fields {
		trimmed := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(trimmed) < 2 {
			continue
		}
		runes := []rune(trimmed)
		capitalized := unicode.IsUpper(runes[0])
		if i == 0 && capitalized && !isAllUpper(trimmed) {
			continue // sentence case, not a proper noun signal
		}
		if capitalized || isAllUpper(trimmed) {
			nouns = append(nouns, strings.ToLower(trimmed))
		}
	}
	return nouns
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// editSimilarity maps Levenshtein distance into [0,1].
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// questionPatternOverlap measures agreement on interrogatives and comparison
// words between the two questions.
func questionPatternOverlap(query, question []string) float64 {
	queryPattern := patternWords(query)
	questionPattern := patternWords(question)
	if len(queryPattern) == 0 || len(questionPattern) == 0 {
		return 0
	}
	matched := 0
	for w := range queryPattern {
		if questionPattern[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryPattern))
}

func patternWords(tokens []string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokens {
		if questionWords[t] {
			set[t] = true
		}
	}
	return set
}
