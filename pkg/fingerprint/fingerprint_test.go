package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Run("key order does not change the fingerprint", func(t *testing.T) {
		a := Generate(map[string]any{"title": "Beach day", "description": "Family at the beach"})
		b := Generate(map[string]any{"description": "Family at the beach", "title": "Beach day"})
		assert.Equal(t, a, b)
	})

	t.Run("nested maps are canonicalized too", func(t *testing.T) {
		a := Generate(map[string]any{"person": map[string]any{"given": "Jane", "surname": "Doe"}})
		b := Generate(map[string]any{"person": map[string]any{"surname": "Doe", "given": "Jane"}})
		assert.Equal(t, a, b)
	})

	t.Run("different content yields a different fingerprint", func(t *testing.T) {
		a := Generate(map[string]any{"title": "Beach day"})
		b := Generate(map[string]any{"title": "Lake day"})
		assert.NotEqual(t, a, b)
	})

	t.Run("slice order matters", func(t *testing.T) {
		a := Generate(map[string]any{"tags": []any{"x", "y"}})
		b := Generate(map[string]any{"tags": []any{"y", "x"}})
		assert.NotEqual(t, a, b)
	})
}

func TestGenerateFromJSON(t *testing.T) {
	fromJSON, err := GenerateFromJSON(json.RawMessage(`{"title":"Beach day","year":2001}`))
	require.NoError(t, err)

	fromMap := Generate(map[string]any{"title": "Beach day", "year": float64(2001)})
	assert.Equal(t, fromMap, fromJSON)

	t.Run("rejects non-object JSON", func(t *testing.T) {
		_, err := GenerateFromJSON(json.RawMessage(`[1,2,3]`))
		assert.Error(t, err)
	})
}

func TestDedupeKey(t *testing.T) {
	key := DedupeKey("facebook", "post-1", "abc")
	assert.Len(t, key, 64)
	assert.Equal(t, key, DedupeKey("facebook", "post-1", "abc"))

	t.Run("each part contributes", func(t *testing.T) {
		assert.NotEqual(t, key, DedupeKey("instagram", "post-1", "abc"))
		assert.NotEqual(t, key, DedupeKey("facebook", "post-2", "abc"))
		assert.NotEqual(t, key, DedupeKey("facebook", "post-1", "abd"))
	})
}

func TestHasChanged(t *testing.T) {
	assert.False(t, HasChanged("abc", "abc"))
	assert.True(t, HasChanged("abc", "abd"))
}
