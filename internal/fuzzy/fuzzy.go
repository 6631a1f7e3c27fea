// Package fuzzy maps imprecise user words onto a known vocabulary using a
// bounded, case-insensitive Levenshtein distance.
package fuzzy

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const DefaultThreshold = 3

type Matcher struct {
	Threshold int
}

type Match struct {
	Value    string
	Distance int
}

func New(threshold int) Matcher {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Closest returns the vocabulary entry nearest to candidate when its distance
// is within the threshold. Ties keep the earlier entry.
func (m Matcher) Closest(candidate string, vocabulary []string) (string, bool) {
	candidate = normalize(candidate)
	if candidate == "" {
		return "", false
	}
	best := ""
	bestDistance := -1
	for _, entry := range vocabulary {
		distance := Distance(candidate, entry)
		if bestDistance < 0 || distance < bestDistance {
			best, bestDistance = entry, distance
		}
	}
	if bestDistance < 0 || bestDistance > m.Threshold {
		return "", false
	}
	return best, true
}

// Alternatives returns every distinct vocabulary entry within the threshold,
// nearest first.
func (m Matcher) Alternatives(candidate string, vocabulary []string) []Match {
	candidate = normalize(candidate)
	if candidate == "" {
		return nil
	}
	seen := map[string]bool{}
	matches := make([]Match, 0)
	for _, entry := range vocabulary {
		if seen[entry] {
			continue
		}
		seen[entry] = true
		distance := Distance(candidate, entry)
		if distance <= m.Threshold {
			matches = append(matches, Match{Value: entry, Distance: distance})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches
}

// Distance is the Levenshtein distance between a and b after trimming and
// lower-casing both.
func Distance(a, b string) int {
	left := []rune(normalize(a))
	right := []rune(normalize(b))
	if len(left) == 0 {
		return len(right)
	}
	if len(right) == 0 {
		return len(left)
	}

	previous := make([]int, len(right)+1)
	current := make([]int, len(right)+1)
	for j := range previous {
		previous[j] = j
	}
	for i := 1; i <= len(left); i++ {
		current[0] = i
		for j := 1; j <= len(right); j++ {
			cost := 1
			if left[i-1] == right[j-1] {
				cost = 0
			}
			current[j] = min(previous[j]+1, current[j-1]+1, previous[j-1]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(right)]
}

func normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if !utf8.ValidString(value) {
		return strings.ToValidUTF8(value, "")
	}
	return value
}
