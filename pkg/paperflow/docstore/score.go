package docstore

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// vector is a bag-of-words term frequency map.
type vector map[string]float64

func vectorize(text string) vector {
	v := make(vector)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 2 {
			continue
		}
		v[tok]++
	}
	return v
}

func (v vector) norm() float64 {
	var sum float64
	for _, f := range v {
		sum += f * f
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of a and b, 0 when either is empty.
func cosine(a, b vector) float64 {
	na, nb := a.norm(), b.norm()
	if na == 0 || nb == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for term, f := range a {
		dot += f * b[term]
	}
	return dot / (na * nb)
}

type indexed struct {
	doc Document
	vec vector
}

// rank scores docs against text and keeps the top k with a positive score.
// Ties keep insertion order.
func rank(docs []indexed, text string, k int) []Match {
	if k <= 0 {
		k = DefaultK
	}
	q := vectorize(text)

	matches := make([]Match, 0, len(docs))
	for _, d := range docs {
		if s := cosine(q, d.vec); s > 0 {
			matches = append(matches, Match{Document: d.doc, Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
