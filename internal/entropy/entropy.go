package entropy

import "math"

// Shannon returns the Shannon entropy of s in bits per character.
// An empty string and a single repeated character both score 0.
func Shannon(s string) float64 {
	if s == "" {
		return 0
	}
	count := map[rune]int{}
	n := 0
	for _, r := range s {
		count[r]++
		n++
	}
	H := 0.0
	total := float64(n)
	for _, c := range count {
		p := float64(c) / total
		H += -p * math.Log2(p)
	}
	return H
}
