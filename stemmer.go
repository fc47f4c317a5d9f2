package marley

import (
	"strings"

	"github.com/kljensen/snowball"
	"github.com/pkg/errors"
)

// Stemmer reduces a single word token to its stem.
type Stemmer interface {
	Stem(word string) string
}

// PorterStemmer is the classical Porter (1980) suffix-stripping stemmer.
type PorterStemmer struct{}

// Stem implements Stemmer.
func (PorterStemmer) Stem(word string) string { return Stem(word) }

// SnowballStemmer delegates to the snowball stemmers. Snowball lowercases
// its input, so stems differ from PorterStemmer on capitalized words.
type SnowballStemmer struct {
	Language string
}

// Stem implements Stemmer. Unknown languages leave the word untouched.
func (s SnowballStemmer) Stem(word string) string {
	lang := s.Language
	if lang == "" {
		lang = "english"
	}
	out, err := snowball.Stem(word, lang, true)
	if err != nil {
		return word
	}
	return out
}

// StemmerByName returns the stemmer configured under name.
func StemmerByName(name string) (Stemmer, error) {
	switch strings.ToLower(name) {
	case "", "porter":
		return PorterStemmer{}, nil
	case "snowball", "porter2":
		return SnowballStemmer{Language: "english"}, nil
	}
	return nil, errors.Errorf("unknown stemmer %q", name)
}

type suffixRule struct {
	suffix, replacement string
}

var (
	step2Rules = []suffixRule{
		{"ational", "ate"}, {"tional", "tion"}, {"enci", "ence"}, {"anci", "ance"},
		{"izer", "ize"}, {"bli", "ble"}, {"alli", "al"}, {"entli", "ent"},
		{"eli", "e"}, {"ousli", "ous"}, {"ization", "ize"}, {"ation", "ate"},
		{"ator", "ate"}, {"alism", "al"}, {"iveness", "ive"}, {"fulness", "ful"},
		{"ousness", "ous"}, {"aliti", "al"}, {"iviti", "ive"}, {"biliti", "ble"},
		{"logi", "log"},
	}
	step3Rules = []suffixRule{
		{"icate", "ic"}, {"ative", ""}, {"alize", "al"}, {"iciti", "ic"},
		{"ical", "ic"}, {"ful", ""}, {"ness", ""},
	}
	step4Rules = []suffixRule{
		{"al", ""}, {"ance", ""}, {"ence", ""}, {"er", ""}, {"ic", ""},
		{"able", ""}, {"ible", ""}, {"ant", ""}, {"ement", ""}, {"ment", ""},
		{"ent", ""}, {"ou", ""}, {"ism", ""}, {"ate", ""}, {"iti", ""},
		{"ous", ""}, {"ive", ""}, {"ize", ""},
	}
)

// Stem returns the Porter stem of word. Words shorter than three bytes are
// returned as is. Matching is case sensitive: only lowercase a, e, i, o, u
// (and y in vowel position) are vowels.
func Stem(word string) string {
	if len(word) < 3 {
		return word
	}
	w := word
	// An initial y is never a vowel.
	if w[0] == 'y' {
		w = "Y" + w[1:]
	}

	// Step 1a
	switch {
	case strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "ies"):
		w = w[:len(w)-2]
	case w[len(w)-1] == 's' && w[len(w)-2] != 's':
		w = w[:len(w)-1]
	}

	// Step 1b
	if strings.HasSuffix(w, "eed") {
		if measureAbove0(w[:len(w)-3]) {
			w = w[:len(w)-1]
		}
	} else if stem, ok := trimSuffixes(w, "ed", "ing"); ok && hasVowel(stem) {
		w = stem
		switch {
		case hasSuffixes(w, "at", "bl", "iz"):
			w += "e"
		case endsDoubleConsonant(w):
			w = w[:len(w)-1]
		case shortSyllable(w):
			w += "e"
		}
	}

	if strings.HasSuffix(w, "y") {
		if stem := w[:len(w)-1]; hasVowel(stem) {
			w = stem + "i"
		}
	}

	// Step 2
	if r, ok := longestSuffix(w, step2Rules); ok {
		if stem := w[:len(w)-len(r.suffix)]; measureAbove0(stem) {
			w = stem + r.replacement
		}
	}

	// Step 3
	if r, ok := longestSuffix(w, step3Rules); ok {
		if stem := w[:len(w)-len(r.suffix)]; measureAbove0(stem) {
			w = stem + r.replacement
		}
	}

	// Step 4
	if r, ok := longestSuffix(w, step4Rules); ok {
		if stem := w[:len(w)-len(r.suffix)]; measureAbove1(stem) {
			w = stem
		}
	} else if hasSuffixes(w, "sion", "tion") {
		if stem := w[:len(w)-3]; measureAbove1(stem) {
			w = stem
		}
	}

	// Step 5
	if strings.HasSuffix(w, "e") {
		stem := w[:len(w)-1]
		if measureAbove1(stem) || (measureIs1(stem) && !shortSyllable(stem)) {
			w = stem
		}
	}
	if strings.HasSuffix(w, "ll") && measureAbove1(w) {
		w = w[:len(w)-1]
	}

	if w != "" && w[0] == 'Y' {
		w = "y" + w[1:]
	}
	return w
}

func isStrictVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

func isVowel(c byte) bool { return c == 'y' || isStrictVowel(c) }

// consonantRun matches a consonant cluster at i: one byte outside aeiou,
// then every following byte outside aeiouy. It returns the end offset.
func consonantRun(s string, i int) (int, bool) {
	if i >= len(s) || isStrictVowel(s[i]) {
		return i, false
	}
	for i++; i < len(s) && !isVowel(s[i]); i++ {
	}
	return i, true
}

// vowelRun matches a vowel cluster at i: one byte of aeiouy, then every
// following byte of aeiou.
func vowelRun(s string, i int) (int, bool) {
	if i >= len(s) || !isVowel(s[i]) {
		return i, false
	}
	for i++; i < len(s) && isStrictVowel(s[i]); i++ {
	}
	return i, true
}

// afterLead tries f at the end of an optional leading consonant cluster,
// first with the cluster and then without it.
func afterLead(s string, f func(i int) bool) bool {
	if i, ok := consonantRun(s, 0); ok && f(i) {
		return true
	}
	return f(0)
}

// vcPairs matches n vowel cluster, consonant cluster pairs starting at i.
func vcPairs(s string, i, n int) (int, bool) {
	for ; n > 0; n-- {
		var ok bool
		if i, ok = vowelRun(s, i); !ok {
			return i, false
		}
		if i, ok = consonantRun(s, i); !ok {
			return i, false
		}
	}
	return i, true
}

func measureAbove0(s string) bool {
	return afterLead(s, func(i int) bool {
		_, ok := vcPairs(s, i, 1)
		return ok
	})
}

func measureAbove1(s string) bool {
	return afterLead(s, func(i int) bool {
		_, ok := vcPairs(s, i, 2)
		return ok
	})
}

// measureIs1 is [C]VC[V] spanning the whole of s.
func measureIs1(s string) bool {
	return afterLead(s, func(i int) bool {
		j, ok := vcPairs(s, i, 1)
		if !ok {
			return false
		}
		if j == len(s) {
			return true
		}
		k, ok := vowelRun(s, j)
		return ok && k == len(s)
	})
}

func hasVowel(s string) bool {
	return afterLead(s, func(i int) bool {
		return i < len(s) && isVowel(s[i])
	})
}

// shortSyllable is a whole word of the form CVc where the final c is not w, x or y.
func shortSyllable(s string) bool {
	i, ok := consonantRun(s, 0)
	if !ok || i+2 != len(s) || !isVowel(s[i]) {
		return false
	}
	return !strings.ContainsRune("aeiouwxy", rune(s[i+1]))
}

func endsDoubleConsonant(s string) bool {
	n := len(s)
	if n < 2 || s[n-1] != s[n-2] {
		return false
	}
	return !strings.ContainsRune("aeiouylsz", rune(s[n-1]))
}

func longestSuffix(w string, rules []suffixRule) (suffixRule, bool) {
	var best suffixRule
	found := false
	for _, r := range rules {
		if len(r.suffix) > len(best.suffix) && strings.HasSuffix(w, r.suffix) {
			best, found = r, true
		}
	}
	return best, found
}

func hasSuffixes(w string, suffixes ...string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(w, s) {
			return true
		}
	}
	return false
}

func trimSuffixes(w string, suffixes ...string) (string, bool) {
	for _, s := range suffixes {
		if strings.HasSuffix(w, s) {
			return w[:len(w)-len(s)], true
		}
	}
	return w, false
}
