package store

import (
	"context"
	"errors"
	"time"

	"verdict/internal/ensemble"
)

// 中文说明：
// 持久层边界接口。实现见 gormstore（SQLite + WAL）。
// 所有方法都尊重 ctx 超时；超时以 ErrTimeout 暴露，由调用方退避重试。

var (
	// ErrNotFound 条目不存在（或从未写入）。
	ErrNotFound = errors.New("store: 记录不存在")
	// ErrDuplicateFingerprint 同一指纹已存在未过期决策——调用方应重新 lookup 而非覆盖。
	ErrDuplicateFingerprint = errors.New("store: fingerprint 已存在未过期决策")
	// ErrTimeout 持久层在调用方限时内未响应。
	ErrTimeout = errors.New("store: 持久层超时")
)

// CacheEntry 缓存条目：决策本体 + 簿记字段。
type CacheEntry struct {
	Decision  *ensemble.AggregatedDecision
	CreatedAt time.Time
	ExpiresAt *time.Time // nil 表示永不过期
	Hits      int64
}

// Expired 判断条目在 now 时刻是否已过期。
func (e *CacheEntry) Expired(now time.Time) bool {
	if e == nil {
		return true
	}
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// CacheStatistics 按资产对统计的缓存命中情况。
type CacheStatistics struct {
	AssetPair    string  `json:"asset_pair"`
	TotalEntries int64   `json:"total_entries"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hit_rate"` // 0-1
}

// DecisionCacheStore 决策缓存的持久化原语。过期/命中语义由上层 cache 包实现。
type DecisionCacheStore interface {
	// Get 按指纹取原始条目（包含已过期条目），不存在返回 ErrNotFound。
	Get(ctx context.Context, fingerprint string) (*CacheEntry, error)
	// Put 写入条目；存在未过期同指纹条目时返回 ErrDuplicateFingerprint，
	// 已过期条目被原地覆盖。
	Put(ctx context.Context, entry *CacheEntry) error
	// Delete 删除条目（幂等）。
	Delete(ctx context.Context, fingerprint string) error
	// Touch 命中计数 +1。
	Touch(ctx context.Context, fingerprint string) error
	// BumpStats 累加命中/未命中计数并重算 hit_rate。计数允许近似。
	BumpStats(ctx context.Context, assetPair string, hit bool) error
	// Stats 读取某资产对的统计；从未统计过返回零值。
	Stats(ctx context.Context, assetPair string) (CacheStatistics, error)
	// DeleteExpired 清除 before 之前过期的条目，返回删除数量。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PerformanceStore 按 (provider, asset, regime) 维护胜负统计。
type PerformanceStore interface {
	// WinRate 返回胜率（0-100）；ok=false 表示无历史记录。读取不产生写副作用。
	WinRate(ctx context.Context, provider, assetPair, regime string) (winRate float64, ok bool, err error)
	// RecordOutcome 原子地累加胜/负并重算胜率；未知组合首次写入时隐式建档。
	RecordOutcome(ctx context.Context, provider, assetPair, regime string, won bool) error
}
