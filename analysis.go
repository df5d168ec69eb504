package terndb

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// stopwords are too common to be worth indexing or searching by
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"to": {}, "was": {}, "will": {}, "with": {},
}

const maxTokenLen = 64

// Analyze splits text into terms: tokens bounded by non alphanumeric
// runes, lowercased, stopwords and overlong tokens dropped, the rest
// stemmed. Documents and queries both go through it, so they agree on
// what a term is.
func Analyze(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		tok := strings.ToLower(field)
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if len(tok) > maxTokenLen {
			continue
		}
		terms = append(terms, english.Stem(tok, false))
	}
	return terms
}
