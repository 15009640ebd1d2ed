package cache

import (
	"context"
	"errors"
	"time"

	"verdict/internal/ensemble"
	"verdict/internal/logger"
	"verdict/internal/store"

	"golang.org/x/sync/singleflight"
)

// 中文说明：
// 内容寻址的决策缓存。正确性契约：每个 (指纹, 有效期窗口) 至多发生一次聚合计算。
// 并发策略为 single-flight：同一指纹的并发计算只放行第一个，
// 后到者阻塞等待并共享其结果；不同指纹完全不协调，可任意并行。
// 命中/未命中计数允许近似（single-flight 等待者不重复计 miss），
// 精确计数不是安全关键路径。

// ComputeFunc 缓存未命中时的聚合计算。
type ComputeFunc func(ctx context.Context) (*ensemble.AggregatedDecision, error)

// DecisionCache 决策缓存门面，叠加 single-flight 协调与统计簿记。
type DecisionCache struct {
	store store.DecisionCacheStore
	group singleflight.Group
	nowFn func() time.Time
}

func New(st store.DecisionCacheStore) *DecisionCache {
	return &DecisionCache{store: st, nowFn: time.Now}
}

// Lookup 按指纹查找。已过期条目视同缺失（计一次 miss），留待覆盖或清理。
func (c *DecisionCache) Lookup(ctx context.Context, assetPair, fingerprint string) (*store.CacheEntry, bool, error) {
	entry, err := c.store.Get(ctx, fingerprint)
	if errors.Is(err, store.ErrNotFound) {
		c.bumpStats(ctx, assetPair, false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Expired(c.now()) {
		c.bumpStats(ctx, assetPair, false)
		return nil, false, nil
	}
	if err := c.store.Touch(ctx, fingerprint); err != nil {
		logger.Warnf("cache: 命中计数更新失败 (fp=%s): %v", fingerprint, err)
	}
	c.bumpStats(ctx, assetPair, true)
	entry.Hits++
	return entry, true, nil
}

// Store 写入新决策。同指纹存在未过期条目时返回 store.ErrDuplicateFingerprint
// ——调用方应重新 Lookup 而不是覆盖。ttl<=0 表示永不过期。
func (c *DecisionCache) Store(ctx context.Context, decision *ensemble.AggregatedDecision, ttl time.Duration) (*store.CacheEntry, error) {
	now := c.now().UTC()
	entry := &store.CacheEntry{Decision: decision, CreatedAt: now}
	if decision.ExpiresAt != nil {
		entry.ExpiresAt = decision.ExpiresAt
	} else if ttl > 0 {
		exp := now.Add(ttl)
		entry.ExpiresAt = &exp
		decision.ExpiresAt = &exp
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = now
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Invalidate 强制后续 Lookup 报告缺失（无论是否过期）。幂等。
func (c *DecisionCache) Invalidate(ctx context.Context, fingerprint string) error {
	return c.store.Delete(ctx, fingerprint)
}

// Stats 返回某资产对的命中统计。
func (c *DecisionCache) Stats(ctx context.Context, assetPair string) (store.CacheStatistics, error) {
	return c.store.Stats(ctx, assetPair)
}

// SweepExpired 清除已过期条目，返回清除数量。由后台调度器周期调用。
func (c *DecisionCache) SweepExpired(ctx context.Context) (int64, error) {
	return c.store.DeleteExpired(ctx, c.now())
}

// GetOrCompute 缓存命中直接返回；未命中时经 single-flight 执行 compute 并写回。
// 返回的 bool 表示结果是否来自缓存。写回时撞上并发写入者（ErrDuplicateFingerprint）
// 则改读对方的结果，保证幂等。
func (c *DecisionCache) GetOrCompute(ctx context.Context, assetPair, fingerprint string, ttl time.Duration, compute ComputeFunc) (*ensemble.AggregatedDecision, bool, error) {
	entry, ok, err := c.Lookup(ctx, assetPair, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return entry.Decision, true, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		decision, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := c.Store(ctx, decision, ttl); err != nil {
			if errors.Is(err, store.ErrDuplicateFingerprint) {
				existing, getErr := c.store.Get(ctx, fingerprint)
				if getErr == nil {
					return existing.Decision, nil
				}
			}
			return nil, err
		}
		return decision, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*ensemble.AggregatedDecision), false, nil
}

// bumpStats 统计失败只告警不致错：计数是观测数据，不能拖垮决策主路径。
func (c *DecisionCache) bumpStats(ctx context.Context, assetPair string, hit bool) {
	if err := c.store.BumpStats(ctx, assetPair, hit); err != nil {
		logger.Warnf("cache: 统计更新失败 (pair=%s hit=%v): %v", assetPair, hit, err)
	}
}

func (c *DecisionCache) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}
