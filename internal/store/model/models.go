package model

import (
	"gorm.io/datatypes"
)

// 中文说明：
// gorm 数据模型。时间一律存 Unix 秒，expires_at=0 表示永不过期
// （SQLite 下比 NULL 索引扫描更可控）。

type DecisionCacheModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	AssetPair    string         `gorm:"column:asset_pair;index:idx_decision_cache_pair_ts"`
	Timestamp    int64          `gorm:"column:timestamp;index:idx_decision_cache_pair_ts"`
	Timeframe    string         `gorm:"column:timeframe"`
	DecisionHash string         `gorm:"column:decision_hash;uniqueIndex"`
	DecisionJSON datatypes.JSON `gorm:"column:decision_json"`
	Confidence   int            `gorm:"column:confidence"`
	MarketRegime string         `gorm:"column:market_regime"`
	Hits         int64          `gorm:"column:hits"`
	CreatedAt    int64          `gorm:"column:created_at"`
	ExpiresAt    int64          `gorm:"column:expires_at;index"` // 0 = 永不过期
}

func (DecisionCacheModel) TableName() string { return "decision_cache" }

type CacheStatsModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	AssetPair    string  `gorm:"column:asset_pair;uniqueIndex"`
	TotalEntries int64   `gorm:"column:total_entries"`
	Hits         int64   `gorm:"column:hits"`
	Misses       int64   `gorm:"column:misses"`
	HitRate      float64 `gorm:"column:hit_rate"` // 0-1
	UpdatedAt    int64   `gorm:"column:updated_at"`
}

func (CacheStatsModel) TableName() string { return "cache_stats" }

type ProviderPerformanceModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	ProviderName string  `gorm:"column:provider_name;uniqueIndex:idx_provider_perf_key"`
	AssetPair    string  `gorm:"column:asset_pair;uniqueIndex:idx_provider_perf_key"`
	MarketRegime string  `gorm:"column:market_regime;uniqueIndex:idx_provider_perf_key"`
	Wins         int64   `gorm:"column:wins"`
	Losses       int64   `gorm:"column:losses"`
	WinRate      float64 `gorm:"column:win_rate"` // 0-100
	LastUpdated  int64   `gorm:"column:last_updated"`
}

func (ProviderPerformanceModel) TableName() string { return "provider_performance" }
