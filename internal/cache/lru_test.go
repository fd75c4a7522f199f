package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("k2", "v2")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expected k to be expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d", c.Size())
	}
}

func TestGetOrLoad(t *testing.T) {
	c := NewLRUCache[[]string](4, time.Minute)
	calls := 0
	load := func() ([]string, error) {
		calls++
		return []string{"meal"}, nil
	}
	for i := 0; i < 3; i++ {
		if _, err := c.GetOrLoad("categories", load); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("loader calls = %d, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrLoad("other", func() ([]string, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get("other"); ok {
		t.Error("errors must not be cached")
	}

	c.Purge()
	if c.Size() != 0 {
		t.Error("Purge left entries")
	}
}

func TestGetOrLoadSharesConcurrentMisses(t *testing.T) {
	c := NewLRUCache[int](1, time.Minute)
	release := make(chan struct{})
	var calls atomic.Int32
	load := func() (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad("k", load)
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > int32(len(results)) {
		t.Errorf("loader calls = %d", n)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("results[%d] = %d", i, v)
		}
	}
	if v, ok := c.Get("k"); !ok || v != 7 {
		t.Errorf("cached = %v, %v", v, ok)
	}
}

func TestManagerStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(nil)
	c := NewLRUCache[int](4, time.Nanosecond)
	m.Register(c)
	c.Set("a", 1)
	time.Sleep(time.Millisecond)
	if n := m.CleanAll(); n != 1 {
		t.Errorf("CleanAll = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	NewManager(nil).Stop()
}
