package compiler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampCounterIsMonotonicAndPrefixed(t *testing.T) {
	now := time.UnixMilli(1732999999999)
	c := NewTimestampCounter(now)

	first := c.NextID()
	second := c.NextID()

	assert.True(t, strings.HasPrefix(first, "1732999999999-"), "NextID() = %q, want prefix %q", first, "1732999999999-")
	assert.NotEqual(t, first, second, "NextID() should not return the same id twice")
	assert.Less(t, first, second, "ids should be lexicographically increasing")
}

func TestUUIDGeneratorProducesUniqueIDs(t *testing.T) {
	g := NewUUIDGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id := g.NextID()
		require.Falsef(t, seen[id], "NextID() returned a duplicate: %q", id)
		seen[id] = true
		assert.Contains(t, id, "-", "NextID() should return a timestamp-uuid composite")
	}
}
