// Package textutil holds the word tokenizer shared by the TF-IDF embedder,
// the extractive summarizer and the lexical retriever.
package textutil

import (
	"regexp"
	"strings"
)

// Han characters are single tokens; other scripts are split into words.
var wordPattern = regexp.MustCompile(`\p{Han}|[\p{Latin}\p{Greek}\p{Cyrillic}\p{N}]+(?:['’][\p{Latin}\p{N}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "do", "does", "did",
		"的", "了", "是", "在", "和", "与", "及",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Words lowercases text and returns its tokens with stopwords removed.
func Words(text string) []string {
	raw := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// WordSet is Words deduplicated.
func WordSet(text string) map[string]struct{} {
	words := Words(text)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}
