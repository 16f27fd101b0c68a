package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Jane Doe", "jane doe"},
		{"strips suffixes", "James O'Brien Jr.", "james obrien"},
		{"strips roman numeral suffixes", "Henry Ford III", "henry ford"},
		{"strips titles", "Gregory House MD", "gregory house"},
		{"collapses whitespace", "  Jane   Doe  ", "jane doe"},
		{"drops punctuation", "Anne-Marie St. Clair", "annemarie st clair"},
		{"empty input", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeName(tc.input))
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"dashed", "1923-04-01", "19230401"},
		{"dotted", "1923.04.01", "19230401"},
		{"slashed", "1923/04/01", "19230401"},
		{"no digits", "unknown", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeDate(tc.input))
		})
	}

	t.Run("different separators compare equal", func(t *testing.T) {
		assert.Equal(t, NormalizeDate("1923-04-01"), NormalizeDate("1923.04.01"))
	})
}

func TestAlphanumeric(t *testing.T) {
	assert.Equal(t, "abc123", Alphanumeric("a-b c!1.2_3"))
	assert.Equal(t, "", Alphanumeric("-- !!"))
}

func TestApply(t *testing.T) {
	assert.Equal(t, "jane doe", Apply("Jane Doe", "lowercase"))
	assert.Equal(t, "jane doe", Apply("  jane doe  ", "trim"))
	assert.Equal(t, "jane doe", Apply("Jane Doe Jr.", "nname"))
	assert.Equal(t, "19230401", Apply("1923-04-01", "ndate"))

	t.Run("unknown normalizer returns value unchanged", func(t *testing.T) {
		assert.Equal(t, "Jane Doe", Apply("Jane Doe", "reverse"))
	})
}

func TestRegister(t *testing.T) {
	Register("shout", func(s string) string { return s + "!" })
	assert.Equal(t, "hey!", Apply("hey", "shout"))
}
