package viewcache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/portfolio-content/pkg/portfolio"
)

func TestCache(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	rows := []*portfolio.Record{{ID: uuid.New(), Table: "skills", Fields: map[string]interface{}{"name": "Go"}}}
	c.Put("skills", rows)
	rows[0].Fields["name"] = "mutated"

	got, ok := c.Get("skills")
	require.True(t, ok)
	assert.Equal(t, "Go", got[0].StringField("name"))

	got[0].Fields["name"] = "mutated again"
	again, _ := c.Get("skills")
	assert.Equal(t, "Go", again[0].StringField("name"))

	c.Put("projects", nil)
	c.InvalidateTables("skills", "unknown")
	_, ok = c.Get("skills")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	c.Put("a", nil)
	c.Put("b", nil)
	_, _ = c.Get("a")
	c.Put("c", nil)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestNewDefaultSize(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestCachePutIfGeneration(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)

	gen := c.Generation("projects")
	c.InvalidateTables("projects")
	assert.False(t, c.PutIfGeneration("projects", gen, nil), "read before invalidation")
	_, ok := c.Get("projects")
	assert.False(t, ok)

	gen = c.Generation("projects")
	other := c.Generation("skills")
	c.InvalidateTables("skills")
	assert.True(t, c.PutIfGeneration("projects", gen, nil), "other tables do not interfere")

	c.Purge()
	assert.False(t, c.PutIfGeneration("skills", other+1, nil), "purge advances every table")
}
