package marley

import (
	"math"
	"sort"
	"strings"
)

// Vector is a term vector: stem -> occurrence count for one text.
// A Vector is never modified after NewVector returns it.
type Vector struct {
	counts map[string]int
	norm   float64
}

// NewVector splits text on runs of non-word characters, stems every token
// and counts the stems. A nil stemmer means PorterStemmer.
func NewVector(s Stemmer, text string) *Vector {
	if s == nil {
		s = PorterStemmer{}
	}
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(text, isSeparator) {
		counts[s.Stem(tok)]++
	}
	var sq int
	for _, c := range counts {
		sq += c * c
	}
	return &Vector{counts: counts, norm: math.Sqrt(float64(sq))}
}

// VectorOf builds the vector of one field of doc. A field the document does
// not carry is an *InvalidInputError; an empty field is an empty vector.
func VectorOf(s Stemmer, doc Document, field string) (*Vector, error) {
	text, ok := doc.Field(field)
	if !ok {
		return nil, &InvalidInputError{DocumentID: doc.DocumentID(), Field: field}
	}
	return NewVector(s, text), nil
}

// word characters are [A-Za-z0-9_]
func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return false
	}
	return true
}

// Get returns the count of stem, 0 when absent.
func (v *Vector) Get(stem string) int { return v.counts[stem] }

// Norm is the Euclidean norm of the counts.
func (v *Vector) Norm() float64 { return v.norm }

// Unit returns the coordinate of stem in the unit vector, 0 for an empty vector.
func (v *Vector) Unit(stem string) float64 {
	if v.norm == 0 {
		return 0
	}
	return float64(v.counts[stem]) / v.norm
}

// Len is the number of distinct stems.
func (v *Vector) Len() int { return len(v.counts) }

// Stems returns the distinct stems in sorted order.
func (v *Vector) Stems() []string {
	stems := make([]string, 0, len(v.counts))
	for s := range v.counts {
		stems = append(stems, s)
	}
	sort.Strings(stems)
	return stems
}

// Dot is the cosine similarity of u and v, in [0, 1]. Terms are summed in
// stem order so Dot(u, v) and Dot(v, u) are bitwise equal.
func Dot(u, v *Vector) float64 {
	if u.norm == 0 || v.norm == 0 {
		return 0
	}
	small, large := u, v
	if len(small.counts) > len(large.counts) {
		small, large = large, small
	}
	// stems outside the intersection contribute exactly 0
	shared := make([]string, 0, len(small.counts))
	for s := range small.counts {
		if _, ok := large.counts[s]; ok {
			shared = append(shared, s)
		}
	}
	sort.Strings(shared)

	var sum float64
	for _, s := range shared {
		sum += u.Unit(s) * v.Unit(s)
	}
	return math.Min(sum, 1)
}
