package dataservice

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

type cacheTagsContextKey struct{}

// WithCacheTags attaches cache tags to the context. Rows cached by a read made
// with this context are dropped by Invalidate with any of the tags.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	existing := cacheTagsFromContext(ctx)
	combined := append(existing, tags...)
	combined = dedupeStrings(combined)
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

// dedupeStrings drops empty and repeated values, keeping first-seen order.
func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type keySet = *xsync.MapOf[string, struct{}]

// tagRegistry maps each tag to the cache keys stored under it.
type tagRegistry struct {
	byTag *xsync.MapOf[string, keySet]
}

func newTagRegistry() *tagRegistry {
	return &tagRegistry{byTag: xsync.NewMapOf[string, keySet]()}
}

func (r *tagRegistry) register(key string, tags []string) {
	for _, tag := range tags {
		set, _ := r.byTag.LoadOrCompute(tag, func() keySet {
			return xsync.NewMapOf[string, struct{}]()
		})
		set.Store(key, struct{}{})
	}
}

// take removes the tags and returns the union of their keys.
func (r *tagRegistry) take(tags ...string) []string {
	var keys []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		set, ok := r.byTag.LoadAndDelete(tag)
		if !ok {
			continue
		}
		set.Range(func(key string, _ struct{}) bool {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
			return true
		})
	}
	return keys
}

func (r *tagRegistry) size() int {
	return r.byTag.Size()
}
