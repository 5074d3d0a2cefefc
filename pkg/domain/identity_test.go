package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/pkg/domain"
)

func TestGenerateProducesDistinctIDs(t *testing.T) {
	g := domain.NewIDGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := g.Generate("", "wall")
		require.False(t, seen[id], "duplicate id %s", id)
		require.True(t, strings.HasPrefix(id, "wall:"), id)
		seen[id] = true
	}
	assert.Equal(t, 500, g.Len())
}

func TestGenerateHonoursFreeSeed(t *testing.T) {
	g := domain.NewIDGenerator()
	first := g.Generate("", "content")

	assert.Equal(t, "A", g.Generate("A", "content"))
	again := g.Generate("A", "content")
	assert.NotEqual(t, "A", again, "seed in use must not be reused")
	assert.NotEqual(t, first, g.Generate(first, "content"))

	g.Release("A")
	assert.False(t, g.InUse("A"))
	assert.Equal(t, "A", g.Generate("A", "content"))
}

func TestGenerateRetriesOnTokenCollision(t *testing.T) {
	tokens := []string{"x", "x", "x", "y"}
	g := domain.NewIDGenerator(domain.WithTokenSource(func() string {
		tok := tokens[0]
		if len(tokens) > 1 {
			tokens = tokens[1:]
		}
		return tok
	}))
	assert.Equal(t, "layer:x", g.Generate("", "layer"))
	assert.Equal(t, "layer:y", g.Generate("", "layer"))
	assert.Equal(t, "id:y", g.Generate("", ""))
}

func TestReserve(t *testing.T) {
	g := domain.NewIDGenerator()
	assert.False(t, g.Reserve(""))
	assert.True(t, g.Reserve("wall:1"))
	assert.False(t, g.Reserve("wall:1"))
	assert.True(t, g.InUse("wall:1"))
}
