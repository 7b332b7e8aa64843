package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestLRUCacheExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute).WithClock(clk.now)

	c.Set("a", "1")
	c.SetUntil("b", "2", clk.t.Add(time.Hour))

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	clk.advance(time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have expired at its TTL")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b should still be present")
	}

	clk.advance(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should survive eviction")
	}
}

func TestLRUCacheUnbounded(t *testing.T) {
	c := NewLRUCache[int](0, time.Hour)
	for i := 0; i < 100; i++ {
		c.Set(string(rune('A'+i)), i)
	}
	if c.Size() != 100 {
		t.Fatalf("Size() = %d, want 100", c.Size())
	}
	c.Delete("A")
	if c.Size() != 99 {
		t.Fatalf("Size() after delete = %d, want 99", c.Size())
	}
}

func TestManagerRun(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	c := NewLRUCache[bool](0, time.Millisecond).WithClock(clk.now)
	c.Set("x", true)
	clk.advance(time.Second)

	m := NewManager(nil)
	m.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 5*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for c.Size() != 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
}
