package arxiv

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// DefaultSimhashThreshold is the largest Hamming distance at which two
// titles count as the same paper.
const DefaultSimhashThreshold = 3

// Simhash returns the 64-bit simhash of text's lowercased word features.
func Simhash(text string) uint64 {
	var weights [64]int
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}

	var out uint64
	for i, w := range weights {
		if w > 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// Distance is the Hamming distance between two simhashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Dedup removes papers with a repeated ID, then papers whose title simhash
// is within threshold of an earlier kept paper. Order is preserved.
func Dedup(papers []Paper, threshold int) []Paper {
	seen := make(map[string]bool, len(papers))
	var kept []Paper
	var hashes []uint64

outer:
	for _, p := range papers {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		h := Simhash(p.Title)
		for _, k := range hashes {
			if Distance(h, k) <= threshold {
				continue outer
			}
		}
		kept = append(kept, p)
		hashes = append(hashes, h)
	}
	return kept
}
