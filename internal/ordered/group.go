// Package ordered provides a keyed accumulator that remembers first-seen
// key order.
package ordered

// Group accumulates values by key. Callers that produce output must still
// sort explicitly; first-seen order only makes ties reproducible.
type Group[K comparable, V any] struct {
	keys []K
	vals map[K]*V
}

func NewGroup[K comparable, V any]() *Group[K, V] {
	return &Group[K, V]{vals: make(map[K]*V)}
}

// Get returns the accumulator for k, creating it with init on first use.
func (g *Group[K, V]) Get(k K, init func() V) *V {
	if v, ok := g.vals[k]; ok {
		return v
	}
	v := init()
	g.vals[k] = &v
	g.keys = append(g.keys, k)
	return &v
}

// Lookup returns the accumulator for k without creating it.
func (g *Group[K, V]) Lookup(k K) (*V, bool) {
	v, ok := g.vals[k]
	return v, ok
}

// Values returns the accumulators in first-seen order.
func (g *Group[K, V]) Values() []*V {
	out := make([]*V, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, g.vals[k])
	}
	return out
}

// Keys returns the keys in first-seen order.
func (g *Group[K, V]) Keys() []K {
	return append([]K(nil), g.keys...)
}

func (g *Group[K, V]) Len() int {
	return len(g.keys)
}
