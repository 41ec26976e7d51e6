package cache

import "testing"

func TestGetPut(t *testing.T) {
	c := NewLRU[string, int](10)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache returned a value")
	}

	c.Put("a", 1)
	c.Put("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	// Put over an existing key replaces the value.
	c.Put("a", 3)
	if v, _ := c.Get("a"); v != 3 {
		t.Errorf("Get(a) after overwrite = %d, want 3", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len() after overwrite = %d, want 2", c.Len())
	}
}

func TestEviction(t *testing.T) {
	c := NewLRU[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most recently used
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := NewLRU[string, int](0)

	c.Put("a", 1)
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get after Remove returned a value")
	}
	c.Remove("a") // second remove is a no-op

	c.Put("b", 2)
	c.Put("c", 3)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestStats(t *testing.T) {
	c := NewLRU[string, int](5)

	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Size != 1 || s.MaxSize != 5 {
		t.Errorf("stats = %+v", s)
	}
}
