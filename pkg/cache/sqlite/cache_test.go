package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()
	key := "report:u1:free:2026-03-01T00:00:00Z:1-1"

	if err := c.Put(ctx, key, []byte(`{"tier":"free"}`)); err != nil {
		t.Fatal(err)
	}

	data, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != `{"tier":"free"}` {
		t.Errorf("unexpected value: %s", data)
	}

	// Another snapshot version is a different key.
	_, ok, _ = c.Get(ctx, "report:u1:free:2026-03-01T00:00:00Z:2-2")
	if ok {
		t.Error("expected cache miss for different version")
	}
}

func TestPutOverwrites(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "k", []byte("old"))
	_ = c.Put(ctx, "k", []byte("new"))

	data, ok, _ := c.Get(ctx, "k")
	if !ok || string(data) != "new" {
		t.Errorf("expected overwritten value, got %q (hit=%v)", data, ok)
	}
}

func TestTTLExpiration(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if err := c.Put(ctx, "k", []byte("data")); err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "h1", []byte("data"))
	_, _, _ = c.Get(ctx, "h1") // hit
	_, _, _ = c.Get(ctx, "h2") // miss

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "h1", []byte("data"))
	_ = c.Put(ctx, "h2", []byte("data"))

	if err := c.Clear(ctx, false); err != nil {
		t.Fatal(err)
	}

	stats, _ := c.Stats(ctx)
	if stats.Entries != 0 {
		t.Errorf("expected 0 entries after clear, got %d", stats.Entries)
	}
}

func TestClearExpiredOnly(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.now = func() time.Time { return base }
	_ = c.Put(ctx, "old", []byte("data"))

	c.now = func() time.Time { return base.Add(5 * time.Minute) }
	_ = c.Put(ctx, "fresh", []byte("data"))

	if err := c.Clear(ctx, true); err != nil {
		t.Fatal(err)
	}

	stats, _ := c.Stats(ctx)
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry after clearing expired, got %d", stats.Entries)
	}
	if _, ok, _ := c.Get(ctx, "fresh"); !ok {
		t.Error("fresh entry should survive")
	}
}
