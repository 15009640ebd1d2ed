package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"verdict/internal/ensemble"
	"verdict/internal/store"
	"verdict/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// GormStore implements the decision cache and provider performance
// persistence using Gorm + SQLite.
type GormStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewGormStore initializes the store, creating the schema if needed.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// DriverName "sqlite" binds the dialector to the pure-Go
	// modernc.org/sqlite driver; the default go-sqlite3 needs cgo,
	// which is disabled in this build (CGO_ENABLED=0).
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.DecisionCacheModel{},
		&model.CacheStatsModel{},
		&model.ProviderPerformanceModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep a small pool so concurrent readers don't fight
	// the single writer for locks.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db, nowFn: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ store.DecisionCacheStore = (*GormStore)(nil)
	_ store.PerformanceStore   = (*GormStore)(nil)
)

// --------------------- DecisionCacheStore -------------------------

func (s *GormStore) Get(ctx context.Context, fingerprint string) (*store.CacheEntry, error) {
	var m model.DecisionCacheModel
	err := s.db.WithContext(ctx).Where("decision_hash = ?", fingerprint).First(&m).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return entryFromModel(&m)
}

func (s *GormStore) Put(ctx context.Context, entry *store.CacheEntry) error {
	if entry == nil || entry.Decision == nil {
		return fmt.Errorf("gorm store: 缓存条目缺少决策本体")
	}
	m, err := modelFromEntry(entry)
	if err != nil {
		return err
	}
	now := s.now().Unix()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.DecisionCacheModel
		lookupErr := tx.Where("decision_hash = ?", m.DecisionHash).First(&existing).Error
		if lookupErr == nil {
			if existing.ExpiresAt == 0 || existing.ExpiresAt > s.now().Unix() {
				return store.ErrDuplicateFingerprint
			}
			// 已过期：原地覆盖，总条目数不变
			updates := map[string]interface{}{
				"asset_pair":    m.AssetPair,
				"timestamp":     m.Timestamp,
				"timeframe":     m.Timeframe,
				"decision_json": m.DecisionJSON,
				"confidence":    m.Confidence,
				"market_regime": m.MarketRegime,
				"hits":          int64(0),
				"created_at":    m.CreatedAt,
				"expires_at":    m.ExpiresAt,
			}
			return tx.Model(&model.DecisionCacheModel{}).Where("id = ?", existing.ID).Updates(updates).Error
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return lookupErr
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return bumpStatsTx(tx, m.AssetPair, 1, 0, 0, now)
	})
	return wrapErr(err)
}

func (s *GormStore) Delete(ctx context.Context, fingerprint string) error {
	now := s.now().Unix()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.DecisionCacheModel
		lookupErr := tx.Where("decision_hash = ?", fingerprint).First(&existing).Error
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if lookupErr != nil {
			return lookupErr
		}
		if err := tx.Delete(&model.DecisionCacheModel{}, existing.ID).Error; err != nil {
			return err
		}
		return bumpStatsTx(tx, existing.AssetPair, -1, 0, 0, now)
	})
	return wrapErr(err)
}

func (s *GormStore) Touch(ctx context.Context, fingerprint string) error {
	err := s.db.WithContext(ctx).
		Model(&model.DecisionCacheModel{}).
		Where("decision_hash = ?", fingerprint).
		UpdateColumn("hits", gorm.Expr("hits + 1")).Error
	return wrapErr(err)
}

func (s *GormStore) BumpStats(ctx context.Context, assetPair string, hit bool) error {
	var dHits, dMisses int64
	if hit {
		dHits = 1
	} else {
		dMisses = 1
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return bumpStatsTx(tx, assetPair, 0, dHits, dMisses, s.now().Unix())
	})
	return wrapErr(err)
}

func (s *GormStore) Stats(ctx context.Context, assetPair string) (store.CacheStatistics, error) {
	var m model.CacheStatsModel
	err := s.db.WithContext(ctx).Where("asset_pair = ?", assetPair).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.CacheStatistics{AssetPair: assetPair}, nil
	}
	if err != nil {
		return store.CacheStatistics{}, wrapErr(err)
	}
	return store.CacheStatistics{
		AssetPair:    m.AssetPair,
		TotalEntries: m.TotalEntries,
		Hits:         m.Hits,
		Misses:       m.Misses,
		HitRate:      m.HitRate,
	}, nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.Unix()
	now := s.now().Unix()
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type pairCount struct {
			AssetPair string
			N         int64
		}
		var counts []pairCount
		if err := tx.Model(&model.DecisionCacheModel{}).
			Select("asset_pair, COUNT(*) AS n").
			Where("expires_at > 0 AND expires_at <= ?", cutoff).
			Group("asset_pair").
			Scan(&counts).Error; err != nil {
			return err
		}
		if len(counts) == 0 {
			return nil
		}
		res := tx.Where("expires_at > 0 AND expires_at <= ?", cutoff).
			Delete(&model.DecisionCacheModel{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		for _, c := range counts {
			if err := bumpStatsTx(tx, c.AssetPair, -c.N, 0, 0, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	return removed, nil
}

// bumpStatsTx upserts the per-pair counters. hit_rate is recomputed inside
// the same statement so concurrent bumps keep it consistent with the counters.
func bumpStatsTx(tx *gorm.DB, assetPair string, dEntries, dHits, dMisses int64, now int64) error {
	dLookups := dHits + dMisses
	initial := model.CacheStatsModel{
		AssetPair:    assetPair,
		TotalEntries: dEntries,
		Hits:         dHits,
		Misses:       dMisses,
		UpdatedAt:    now,
	}
	if dLookups > 0 {
		initial.HitRate = float64(dHits) / float64(dLookups)
	}
	updates := clause.Assignments(map[string]interface{}{
		"total_entries": gorm.Expr("MAX(cache_stats.total_entries + ?, 0)", dEntries),
		"hits":          gorm.Expr("cache_stats.hits + ?", dHits),
		"misses":        gorm.Expr("cache_stats.misses + ?", dMisses),
		"hit_rate": gorm.Expr(
			"CASE WHEN cache_stats.hits + cache_stats.misses + ? > 0 "+
				"THEN CAST(cache_stats.hits + ? AS REAL) / (cache_stats.hits + cache_stats.misses + ?) "+
				"ELSE 0 END",
			dLookups, dHits, dLookups),
		"updated_at": now,
	})
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_pair"}},
		DoUpdates: updates,
	}).Create(&initial).Error
}

// --------------------- PerformanceStore -------------------------

func (s *GormStore) WinRate(ctx context.Context, provider, assetPair, regime string) (float64, bool, error) {
	var m model.ProviderPerformanceModel
	err := s.db.WithContext(ctx).
		Where("provider_name = ? AND asset_pair = ? AND market_regime = ?", provider, assetPair, regime).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapErr(err)
	}
	if m.Wins+m.Losses == 0 {
		return 0, false, nil
	}
	return m.WinRate, true, nil
}

func (s *GormStore) RecordOutcome(ctx context.Context, provider, assetPair, regime string, won bool) error {
	var winInc, lossInc int64
	var initialRate float64
	if won {
		winInc, initialRate = 1, 100
	} else {
		lossInc = 1
	}
	now := s.now().Unix()
	m := model.ProviderPerformanceModel{
		ProviderName: provider,
		AssetPair:    assetPair,
		MarketRegime: regime,
		Wins:         winInc,
		Losses:       lossInc,
		WinRate:      initialRate,
		LastUpdated:  now,
	}
	// 读-改-写折叠进单条 upsert，并发记录同一键不会丢更新。
	// 分母 +1 对应本次新增的这一条结果。
	updates := clause.Assignments(map[string]interface{}{
		"wins":   gorm.Expr("provider_performance.wins + ?", winInc),
		"losses": gorm.Expr("provider_performance.losses + ?", lossInc),
		"win_rate": gorm.Expr(
			"CAST(provider_performance.wins + ? AS REAL) * 100.0 / (provider_performance.wins + provider_performance.losses + 1)",
			winInc),
		"last_updated": now,
	})
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_name"}, {Name: "asset_pair"}, {Name: "market_regime"}},
		DoUpdates: updates,
	}).Create(&m).Error
	return wrapErr(err)
}

// --------------------- helpers -------------------------

func entryFromModel(m *model.DecisionCacheModel) (*store.CacheEntry, error) {
	var d ensemble.AggregatedDecision
	if err := json.Unmarshal(m.DecisionJSON, &d); err != nil {
		return nil, fmt.Errorf("gorm store: 反序列化决策失败 (hash=%s): %w", m.DecisionHash, err)
	}
	entry := &store.CacheEntry{
		Decision:  &d,
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
		Hits:      m.Hits,
	}
	if m.ExpiresAt > 0 {
		t := time.Unix(m.ExpiresAt, 0).UTC()
		entry.ExpiresAt = &t
	}
	return entry, nil
}

func modelFromEntry(entry *store.CacheEntry) (*model.DecisionCacheModel, error) {
	d := entry.Decision
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("gorm store: 序列化决策失败: %w", err)
	}
	m := &model.DecisionCacheModel{
		AssetPair:    d.AssetPair,
		Timestamp:    d.Timestamp.Unix(),
		Timeframe:    d.Timeframe,
		DecisionHash: d.DecisionHash,
		DecisionJSON: raw,
		Confidence:   int(d.Confidence + 0.5),
		MarketRegime: d.MarketRegime,
		Hits:         entry.Hits,
		CreatedAt:    entry.CreatedAt.Unix(),
	}
	if entry.ExpiresAt != nil {
		m.ExpiresAt = entry.ExpiresAt.Unix()
	}
	return m, nil
}

// wrapErr translates driver-level failures into the store error taxonomy.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	default:
		return err
	}
}

func (s *GormStore) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
