package feel

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liamcoop/dmn/internal/logger"
)

// TestInMemoryExprCache verifies basic cache operations
func TestInMemoryExprCache(t *testing.T) {
	c := NewInMemoryExprCache(CacheConfig{})
	n := &Literal{Value: NewNumber(1)}

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("k", n)
	got, ok := c.Get("k")
	if !ok || got != n {
		t.Fatalf("expected cached node, got %v %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}

	c.Invalidate()
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after invalidate")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

// TestCacheMaxEntries verifies the cache is cleared when full
func TestCacheMaxEntries(t *testing.T) {
	c := NewInMemoryExprCache(CacheConfig{MaxEntries: 2})
	c.Set("a", &Literal{Value: Null})
	c.Set("b", &Literal{Value: Null})
	c.Set("c", &Literal{Value: Null})

	if c.Len() != 1 {
		t.Fatalf("expected the cache to be cleared before adding c, got %d entries", c.Len())
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected the newest entry to survive")
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected older entries to be dropped")
	}
}

// TestCacheTTL verifies expired entries miss
func TestCacheTTL(t *testing.T) {
	c := NewInMemoryExprCache(CacheConfig{TTL: 20 * time.Millisecond})
	c.Set("k", &Literal{Value: Null})
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after expiry")
	}
}

// TestCacheConcurrentAccess exercises the cache from several goroutines
func TestCacheConcurrentAccess(t *testing.T) {
	c := NewInMemoryExprCache(CacheConfig{MaxEntries: 50})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := strings.Repeat("x", i+1)
				c.Set(key, &Literal{Value: NewNumber(int64(j))})
				c.Get(key)
				c.Len()
			}
		}(i)
	}
	wg.Wait()
}

// TestInterpreterParseCache verifies parsed trees are reused and that
// registering a function invalidates them
func TestInterpreterParseCache(t *testing.T) {
	var hits, misses int
	reg := NewRegistry()
	in := NewInterpreter(
		WithRegistry(reg),
		WithCache(NewInMemoryExprCache(CacheConfig{})),
		WithCacheObserver(func(hit bool) {
			if hit {
				hits++
			} else {
				misses++
			}
		}),
	)

	for i := 0; i < 3; i++ {
		if _, err := in.EvaluateExpression("1 + 1", nil); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	if misses != 1 || hits != 2 {
		t.Fatalf("expected 1 miss and 2 hits, got %d and %d", misses, hits)
	}

	// the same text under the unary tests grammar is a different entry
	if _, err := in.MatchesUnaryTestsString("1 + 1", NewNumber(2), nil); err != nil {
		t.Fatalf("match: %v", err)
	}
	if misses != 2 {
		t.Errorf("expected a miss for a different grammar, got %d", misses)
	}

	if err := reg.RegisterExpression("double", "function(x) x * 2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := in.EvaluateExpression("1 + 1", nil); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if misses != 3 {
		t.Errorf("expected a miss after the registry changed, got %d", misses)
	}
}

// TestInterpreterParseErrorsNotCached verifies failed parses are retried
func TestInterpreterParseErrorsNotCached(t *testing.T) {
	cache := NewInMemoryExprCache(CacheConfig{})
	in := NewInterpreter(WithCache(cache))
	if _, err := in.Parse("1 +", EntryExpression); err == nil {
		t.Fatal("expected syntax error")
	}
	if cache.Len() != 0 {
		t.Errorf("expected no cached entries, got %d", cache.Len())
	}
}

// TestInterpreterTracing verifies parse and evaluation tracing at trace level
func TestInterpreterTracing(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logger.LevelTrace}))
	in := NewInterpreter(WithLogger(log), WithTracing(true, true))

	if _, err := in.EvaluateExpression("2 * 3", nil); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"feel parse", "feel evaluate", "result=6"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
}

// TestInterpreterTracingDisabled verifies nothing is logged by default
func TestInterpreterTracingDisabled(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logger.LevelTrace}))
	in := NewInterpreter(WithLogger(log))

	if _, err := in.EvaluateExpression("2 * 3", nil); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got:\n%s", buf.String())
	}
}
