// Package dedup finds and resolves duplicate memorial pages.
package dedup

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/normalizers"
)

// Field weights for memorial similarity. Name similarity dominates; dates and
// shared contributors corroborate.
var defaultWeights = map[string]float64{
	"name":         0.5,
	"birth_date":   0.2,
	"death_date":   0.2,
	"contributors": 0.1,
}

// Scorer compares memorial pairs and produces a weighted similarity score
type Scorer struct {
	weights map[string]float64
}

// NewScorer creates a scorer with the default field weights
func NewScorer() *Scorer {
	return &Scorer{weights: defaultWeights}
}

// Score compares two memorials. Returns the combined score and the per-field
// scores that produced it.
func (s *Scorer) Score(a, b *models.Memorial) (float64, map[string]float64) {
	scores := map[string]float64{
		"name":         s.nameSimilarity(a, b),
		"birth_date":   s.dateMatch(a.BirthDate, b.BirthDate),
		"death_date":   s.dateMatch(a.DeathDate, b.DeathDate),
		"contributors": s.contributorOverlap(a.Contributors, b.Contributors),
	}
	return s.WeightedScore(scores, s.weights), scores
}

func (s *Scorer) nameSimilarity(a, b *models.Memorial) float64 {
	nameA := normalizers.NormalizeName(a.GivenName + " " + a.Surname)
	nameB := normalizers.NormalizeName(b.GivenName + " " + b.Surname)
	if nameA == "" || nameB == "" {
		return 0.0
	}

	similarity := s.JaroWinkler(nameA, nameB)

	// Phonetically equal surnames keep misspellings in range
	if s.Soundex(a.Surname) == s.Soundex(b.Surname) && similarity < 0.85 {
		similarity = (similarity + 0.85) / 2
	}
	return similarity
}

// dateMatch compares normalized dates. Missing dates score a neutral 0.5
// rather than dragging the pair apart; old records often lack them.
func (s *Scorer) dateMatch(a, b string) float64 {
	if a == "" || b == "" {
		return 0.5
	}
	if normalizers.NormalizeDate(a) == normalizers.NormalizeDate(b) {
		return 1.0
	}
	return 0.0
}

func (s *Scorer) contributorOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[strings.ToLower(c)] = true
	}

	shared := 0
	for _, c := range b {
		if seen[strings.ToLower(c)] {
			shared++
		}
	}

	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Soundex calculates the Soundex encoding of a string
func (s *Scorer) Soundex(str string) string {
	str = strings.ToUpper(strings.TrimSpace(str))
	if len(str) == 0 {
		return ""
	}

	result := string(str[0])
	prevCode := soundexCode(rune(str[0]))

	for i := 1; i < len(str) && len(result) < 4; i++ {
		char := rune(str[i])
		if !unicode.IsLetter(char) {
			continue
		}

		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}

	for len(result) < 4 {
		result += "0"
	}

	return result
}

// soundexCode returns the Soundex code for a character
func soundexCode(char rune) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}

// WeightedScore calculates a weighted average of scores
func (s *Scorer) WeightedScore(scores map[string]float64, weights map[string]float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	var totalWeight float64
	var weightedSum float64

	for field, score := range scores {
		weight := 1.0
		if w, ok := weights[field]; ok {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return weightedSum / totalWeight
}
