package reader

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenizerVersion changes whenever Tokenize or ExtractProse would produce a
// different token stream for the same input. Cached books are keyed on it.
const TokenizerVersion = "2"

// Pacing weights applied to the base per-word duration.
const (
	BaseWeight     = 1.0
	ClauseWeight   = 1.5
	SentenceWeight = 2.0
)

// Token is a single displayable word with its pacing weight.
type Token struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// closers may trail a sentence terminator without changing its pacing,
// e.g. `said."` or `(see above).`
const closers = "\"'”’)]}»›"

// Tokenize splits prose on whitespace into display tokens.
//
// Words made only of punctuation are never displayed; their pause is carried
// by the preceding token instead.
func Tokenize(text string) []Token {
	fields := strings.Fields(text)
	tokens := make([]Token, 0, len(fields))
	for _, word := range fields {
		weight := PacingWeight(word)
		if isPunctuationOnly(word) {
			if n := len(tokens); n > 0 && weight > tokens[n-1].Weight {
				tokens[n-1].Weight = weight
			}
			continue
		}
		tokens = append(tokens, Token{Text: word, Weight: weight})
	}
	return tokens
}

// ParseText splits text into words.
func ParseText(text string) []string {
	tokens := Tokenize(text)
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.Text
	}
	return words
}

// PacingWeight returns the display-time multiplier for a word based on its
// trailing punctuation.
func PacingWeight(word string) float64 {
	trimmed := strings.TrimRight(word, closers)
	if trimmed == "" {
		return BaseWeight
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '.', '?', '!', '…', '。', '！', '？':
		return SentenceWeight
	case ',', ';', ':', '—', '–', '-', '、', '，', '；', '：':
		return ClauseWeight
	}
	return BaseWeight
}

func isPunctuationOnly(word string) bool {
	for _, r := range word {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}
