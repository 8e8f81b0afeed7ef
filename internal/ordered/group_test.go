package ordered

import "testing"

func TestGroupFirstSeenOrder(t *testing.T) {
	g := NewGroup[string, int]()
	for _, k := range []string{"b", "a", "b", "c", "a", "b"} {
		*g.Get(k, func() int { return 0 }) += 1
	}

	keys := g.Keys()
	if len(keys) != 3 || keys[0] != "b" || keys[1] != "a" || keys[2] != "c" {
		t.Fatalf("unexpected key order: %v", keys)
	}
	vals := g.Values()
	if *vals[0] != 3 || *vals[1] != 2 || *vals[2] != 1 {
		t.Fatalf("unexpected counts: %d %d %d", *vals[0], *vals[1], *vals[2])
	}
	if g.Len() != 3 {
		t.Fatalf("expected 3 keys, got %d", g.Len())
	}
}

func TestGroupLookup(t *testing.T) {
	g := NewGroup[int, string]()
	if _, ok := g.Lookup(1); ok {
		t.Fatal("expected missing key")
	}
	g.Get(1, func() string { return "one" })
	v, ok := g.Lookup(1)
	if !ok || *v != "one" {
		t.Fatalf("Lookup = %v, %v", v, ok)
	}
	if g.Len() != 1 {
		t.Fatal("Lookup must not create keys")
	}
}
