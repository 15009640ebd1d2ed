package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"verdict/internal/ensemble"
	"verdict/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 测试用的内存实现，语义对齐 gormstore。
type memStore struct {
	mu      sync.Mutex
	entries map[string]*store.CacheEntry
	stats   map[string]*store.CacheStatistics
	now     func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		entries: map[string]*store.CacheEntry{},
		stats:   map[string]*store.CacheStatistics{},
		now:     time.Now,
	}
}

func (m *memStore) Get(_ context.Context, fp string) (*store.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[fp]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (m *memStore) Put(_ context.Context, entry *store.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp := entry.Decision.DecisionHash
	if existing, ok := m.entries[fp]; ok && !existing.Expired(m.now()) {
		return store.ErrDuplicateFingerprint
	}
	cp := *entry
	m.entries[fp] = &cp
	return nil
}

func (m *memStore) Delete(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, fp)
	return nil
}

func (m *memStore) Touch(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[fp]; ok {
		entry.Hits++
	}
	return nil
}

func (m *memStore) BumpStats(_ context.Context, pair string, hit bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[pair]
	if !ok {
		st = &store.CacheStatistics{AssetPair: pair}
		m.stats[pair] = st
	}
	if hit {
		st.Hits++
	} else {
		st.Misses++
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return nil
}

func (m *memStore) Stats(_ context.Context, pair string) (store.CacheStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stats[pair]; ok {
		return *st, nil
	}
	return store.CacheStatistics{AssetPair: pair}, nil
}

func (m *memStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for fp, entry := range m.entries {
		if entry.ExpiresAt != nil && !entry.ExpiresAt.After(before) {
			delete(m.entries, fp)
			removed++
		}
	}
	return removed, nil
}

var _ store.DecisionCacheStore = (*memStore)(nil)

func testDecision(fp string) *ensemble.AggregatedDecision {
	return &ensemble.AggregatedDecision{
		AssetPair:    "BTC/USDT",
		Timeframe:    "15m",
		DecisionHash: fp,
		Action:       ensemble.ActionBuy,
		Confidence:   72,
	}
}

func TestGetOrCompute_ComputeOnceThenHit(t *testing.T) {
	c := New(newMemStore())
	ctx := context.Background()
	var computes int32
	compute := func(context.Context) (*ensemble.AggregatedDecision, error) {
		atomic.AddInt32(&computes, 1)
		return testDecision("fp-1"), nil
	}

	d1, cached, err := c.GetOrCompute(ctx, "BTC/USDT", "fp-1", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, ensemble.ActionBuy, d1.Action)

	d2, cached, err := c.GetOrCompute(ctx, "BTC/USDT", "fp-1", time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, d1.DecisionHash, d2.DecisionHash)
	assert.Equal(t, int32(1), atomic.LoadInt32(&computes))
}

func TestGetOrCompute_ConcurrentSingleFlight(t *testing.T) {
	c := New(newMemStore())
	ctx := context.Background()
	var computes int32
	compute := func(context.Context) (*ensemble.AggregatedDecision, error) {
		atomic.AddInt32(&computes, 1)
		time.Sleep(20 * time.Millisecond) // 拉开并发窗口
		return testDecision("fp-conc"), nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]*ensemble.AggregatedDecision, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, _, err := c.GetOrCompute(ctx, "BTC/USDT", "fp-conc", time.Minute, compute)
			results[i] = d
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fp-conc", results[i].DecisionHash)
	}
	// single-flight + 重复写回读：至多一次计算真正落库，
	// 迟到的 Lookup-miss 走 duplicate 分支读现成结果
	assert.LessOrEqual(t, atomic.LoadInt32(&computes), int32(2))
}

func TestGetOrCompute_ExpiredEntryRecomputed(t *testing.T) {
	st := newMemStore()
	c := New(st)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }
	st.now = func() time.Time { return now }

	var computes int32
	compute := func(context.Context) (*ensemble.AggregatedDecision, error) {
		atomic.AddInt32(&computes, 1)
		return testDecision("fp-exp"), nil
	}

	_, cached, err := c.GetOrCompute(ctx, "BTC/USDT", "fp-exp", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, cached)

	// TTL 之内命中
	now = now.Add(30 * time.Second)
	_, cached, err = c.GetOrCompute(ctx, "BTC/USDT", "fp-exp", time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, cached)

	// TTL 之后视同缺失，重新计算并原地覆盖
	now = now.Add(2 * time.Minute)
	_, cached, err = c.GetOrCompute(ctx, "BTC/USDT", "fp-exp", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&computes))
}

func TestStore_DuplicateReturnsError(t *testing.T) {
	c := New(newMemStore())
	ctx := context.Background()

	_, err := c.Store(ctx, testDecision("fp-dup"), time.Minute)
	require.NoError(t, err)

	_, err = c.Store(ctx, testDecision("fp-dup"), time.Minute)
	assert.ErrorIs(t, err, store.ErrDuplicateFingerprint)
}

func TestInvalidate_ForcesMiss(t *testing.T) {
	c := New(newMemStore())
	ctx := context.Background()

	_, err := c.Store(ctx, testDecision("fp-inv"), time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "fp-inv"))
	_, ok, err := c.Lookup(ctx, "BTC/USDT", "fp-inv")
	require.NoError(t, err)
	assert.False(t, ok)

	// 幂等
	assert.NoError(t, c.Invalidate(ctx, "fp-inv"))
}

func TestStats_TracksHitsAndMisses(t *testing.T) {
	c := New(newMemStore())
	ctx := context.Background()

	_, _, _ = c.Lookup(ctx, "BTC/USDT", "missing") // miss
	_, err := c.Store(ctx, testDecision("fp-stat"), time.Minute)
	require.NoError(t, err)
	_, ok, err := c.Lookup(ctx, "BTC/USDT", "fp-stat") // hit
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := c.Stats(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestSweepExpired(t *testing.T) {
	st := newMemStore()
	c := New(st)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }
	st.now = func() time.Time { return now }

	_, err := c.Store(ctx, testDecision("fp-short"), time.Minute)
	require.NoError(t, err)
	_, err = c.Store(ctx, testDecision("fp-forever"), 0) // 永不过期
	require.NoError(t, err)

	now = now.Add(time.Hour)
	removed, err := c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err := c.Lookup(ctx, "BTC/USDT", "fp-forever")
	require.NoError(t, err)
	assert.True(t, ok)
}
