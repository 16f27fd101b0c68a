package duplicatereport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPair(t *testing.T) {
	a, b := CanonicalPair("m1", "m2")
	assert.Equal(t, "m1", a)
	assert.Equal(t, "m2", b)

	a, b = CanonicalPair("m2", "m1")
	assert.Equal(t, "m1", a)
	assert.Equal(t, "m2", b)

	t.Run("equal ids stay put", func(t *testing.T) {
		a, b := CanonicalPair("m1", "m1")
		assert.Equal(t, "m1", a)
		assert.Equal(t, "m1", b)
	})
}
