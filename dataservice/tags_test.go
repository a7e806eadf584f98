package dataservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCacheTags(t *testing.T) {
	ctx := WithCacheTags(context.Background(), "users", "", "users")
	ctx = WithCacheTags(ctx, "orders")

	assert.Equal(t, []string{"users", "orders"}, cacheTagsFromContext(ctx))
	assert.Nil(t, cacheTagsFromContext(context.Background()))
	assert.Equal(t, context.Background(), WithCacheTags(context.Background()))
}

func TestDedupeStringsDoesNotAlias(t *testing.T) {
	in := []string{"a", "a", "b"}
	out := dedupeStrings(in)

	assert.Equal(t, []string{"a", "b"}, out)
	assert.Equal(t, []string{"a", "a", "b"}, in)
}

func TestTagRegistry(t *testing.T) {
	r := newTagRegistry()
	r.register("k1", []string{"users"})
	r.register("k2", []string{"users", "orders"})
	r.register("k3", []string{"orders"})

	require.Equal(t, 2, r.size())

	keys := r.take("users", "orders", "missing")
	assert.ElementsMatch(t, []string{"k1", "k2", "k3"}, keys)
	assert.Equal(t, 0, r.size())
	assert.Empty(t, r.take("users"))
}
