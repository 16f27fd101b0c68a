package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/willow/pkg/models"
)

func TestScorer_Score(t *testing.T) {
	scorer := NewScorer()

	t.Run("same person with matching dates scores above threshold", func(t *testing.T) {
		a := &models.Memorial{ID: "m1", GivenName: "Jane", Surname: "Doe", BirthDate: "1950-01-01", DeathDate: "2020-05-05"}
		b := &models.Memorial{ID: "m2", GivenName: "Jane", Surname: "Doe", BirthDate: "1950-01-01", DeathDate: "2020-05-05"}

		score, fields := scorer.Score(a, b)
		assert.GreaterOrEqual(t, score, 0.85)
		assert.Equal(t, 1.0, fields["name"])
		assert.Equal(t, 1.0, fields["birth_date"])
		assert.Equal(t, 1.0, fields["death_date"])
	})

	t.Run("date format differences still match", func(t *testing.T) {
		a := &models.Memorial{GivenName: "Jane", Surname: "Doe", BirthDate: "1950-01-01"}
		b := &models.Memorial{GivenName: "Jane", Surname: "Doe", BirthDate: "1950.01.01"}

		_, fields := scorer.Score(a, b)
		assert.Equal(t, 1.0, fields["birth_date"])
	})

	t.Run("missing dates are neutral", func(t *testing.T) {
		a := &models.Memorial{GivenName: "Jane", Surname: "Doe"}
		b := &models.Memorial{GivenName: "Jane", Surname: "Doe", BirthDate: "1950-01-01"}

		score, fields := scorer.Score(a, b)
		assert.Equal(t, 0.5, fields["birth_date"])
		assert.Equal(t, 0.5, fields["death_date"])
		// Identical names without corroborating dates stay below threshold
		assert.Less(t, score, 0.85)
	})

	t.Run("name suffixes and punctuation are ignored", func(t *testing.T) {
		a := &models.Memorial{GivenName: "James", Surname: "O'Brien Jr."}
		b := &models.Memorial{GivenName: "James", Surname: "OBrien"}

		_, fields := scorer.Score(a, b)
		assert.Equal(t, 1.0, fields["name"])
	})

	t.Run("phonetically equal surname boosts a misspelling", func(t *testing.T) {
		a := &models.Memorial{GivenName: "Jane", Surname: "Smith"}
		b := &models.Memorial{GivenName: "Jane", Surname: "Smyth"}

		_, fields := scorer.Score(a, b)
		assert.GreaterOrEqual(t, fields["name"], 0.85)
	})

	t.Run("different people score low", func(t *testing.T) {
		a := &models.Memorial{GivenName: "Jane", Surname: "Doe", BirthDate: "1950-01-01"}
		b := &models.Memorial{GivenName: "Mark", Surname: "Dye", BirthDate: "1987-11-23"}

		score, _ := scorer.Score(a, b)
		assert.Less(t, score, 0.85)
	})

	t.Run("shared contributors corroborate", func(t *testing.T) {
		a := &models.Memorial{GivenName: "Jane", Surname: "Doe", Contributors: []string{"alice"}}
		b := &models.Memorial{GivenName: "Jane", Surname: "Doe", Contributors: []string{"Alice", "bob"}}

		_, fields := scorer.Score(a, b)
		assert.Equal(t, 1.0, fields["contributors"])
	})
}

func TestScorer_JaroWinkler(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.JaroWinkler("martha", "martha"))
	assert.Equal(t, 0.0, scorer.JaroWinkler("", "martha"))
	assert.InDelta(t, 0.961, scorer.JaroWinkler("martha", "marhta"), 0.01)
	assert.Greater(t, scorer.JaroWinkler("dixon", "dicksonx"), 0.7)
}

func TestScorer_Soundex(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		in       string
		expected string
	}{
		{"Robert", "R163"},
		{"Rupert", "R163"},
		{"Smith", "S530"},
		{"Smyth", "S530"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, scorer.Soundex(tt.in), tt.in)
	}
}

func TestScorer_WeightedScore(t *testing.T) {
	scorer := NewScorer()

	t.Run("empty scores", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.WeightedScore(nil, defaultWeights))
	})

	t.Run("unknown field defaults to weight 1", func(t *testing.T) {
		result := scorer.WeightedScore(map[string]float64{"other": 0.6}, defaultWeights)
		assert.InDelta(t, 0.6, result, 0.0001)
	})

	t.Run("weights bias the average", func(t *testing.T) {
		scores := map[string]float64{
			"name":         1.0,
			"birth_date":   0.0,
			"death_date":   0.0,
			"contributors": 0.0,
		}
		result := scorer.WeightedScore(scores, defaultWeights)
		assert.InDelta(t, 0.5, result, 0.0001)
	})
}
