package cache

import (
	"testing"
	"time"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string](10, time.Minute)

	if _, ok := c.Get("query", nil); ok {
		t.Error("Get() on empty cache = hit, want miss")
	}

	c.Set("query", nil, "value")
	got, ok := c.Get("query", nil)
	if !ok || got != "value" {
		t.Errorf("Get() = %q/%v, want value/true", got, ok)
	}
}

func TestCache_ParamsAffectKey(t *testing.T) {
	c := New[int](10, time.Minute)

	c.Set("query", map[string]any{"strategy": "parallel"}, 1)
	c.Set("query", map[string]any{"strategy": "sequential"}, 2)

	if got, _ := c.Get("query", map[string]any{"strategy": "parallel"}); got != 1 {
		t.Errorf("Get(parallel) = %d, want 1", got)
	}
	if got, _ := c.Get("query", map[string]any{"strategy": "sequential"}); got != 2 {
		t.Errorf("Get(sequential) = %d, want 2", got)
	}
	if _, ok := c.Get("query", nil); ok {
		t.Error("Get(nil params) = hit, 不同参数不应互相命中")
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("q", map[string]any{"x": 1, "y": "z"})
	b := Key("q", map[string]any{"y": "z", "x": 1})
	if a != b {
		t.Errorf("Key() 不确定: %s != %s", a, b)
	}
	if a == Key("q", nil) {
		t.Error("带参数与不带参数的键不应相同")
	}
	if len(a) != 32 {
		t.Errorf("Key() len = %d, want 32 (md5 hex)", len(a))
	}
}

func TestCache_Stats(t *testing.T) {
	c := New[string](10, time.Minute)

	c.Set("a", nil, "1")
	c.Get("a", nil)
	c.Get("missing", nil)

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("Stats = %+v, want 1 hit / 1 miss / size 1", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", s.HitRate)
	}
}

func TestCache_Purge(t *testing.T) {
	c := New[string](10, time.Minute)
	c.Set("a", nil, "1")
	c.Purge()

	if _, ok := c.Get("a", nil); ok {
		t.Error("Get() after Purge = hit, want miss")
	}
}
