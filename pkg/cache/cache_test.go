package cache

import "testing"

func TestNoOpCache(t *testing.T) {
	c := NewNoOpCache[string]()
	c.Put("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Error("noop cache must never hit")
	}
}

func TestLRUCache(t *testing.T) {
	c, err := NewLRUCache[string](2)
	if err != nil {
		t.Fatalf("NewLRUCache - %v", err)
	}
	c.Put("a", "1")
	c.Put("b", "2")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) -> %s, %v", v, ok)
	}
	c.Put("c", "3")
	if _, ok := c.Get("b"); ok {
		t.Error("b should be evicted")
	}
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be invalidated")
	}
}
