package service

import (
	"context"
	"errors"
	"time"

	"verdict/internal/cache"
	"verdict/internal/ensemble"
	"verdict/internal/logger"
	"verdict/internal/pkg/circuit"
	"verdict/internal/pkg/jsonutil"
	"verdict/internal/pkg/symbol"
	"verdict/internal/scheduler"
	"verdict/internal/store"
	"verdict/internal/store/auditlog"

	"github.com/google/uuid"
)

// 中文说明：
// aggregate_or_get 边界：指纹 → 缓存查找 → 未命中则聚合并写回。
// 缓存的 single-flight 是系统里唯一的并发协调点。
// 持久层连续超时会触发熔断，服务降级为"跳过缓存直接聚合"——
// 宁可重复计算，也不能让决策请求挂死在存储上。

// Aggregator 聚合算法的抽象（便于用计数桩做并发测试）。
type Aggregator interface {
	Aggregate(ctx context.Context, in ensemble.Input) (*ensemble.AggregatedDecision, error)
}

// Config 服务级参数。
type Config struct {
	DefaultTTL   time.Duration // <=0 时按 timeframe 周期推导（决策有效期=一根K线）
	StoreTimeout time.Duration // 调用方未设 deadline 时的持久层兜底限时，默认 5s
}

func (c *Config) applyDefaults() {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
}

// Request 一次决策请求的完整输入。
type Request struct {
	AssetPair    string
	Timeframe    string
	SnapshotTime time.Time
	MarketRegime string
	Opinions     []ensemble.ProviderOpinion
}

// Service 决策服务。
type Service struct {
	cache   *cache.DecisionCache
	agg     Aggregator
	audit   *auditlog.AuditStore // 可为 nil（审计关闭）
	breaker *circuit.Breaker
	cfg     Config
}

func New(c *cache.DecisionCache, agg Aggregator, audit *auditlog.AuditStore, cfg Config) *Service {
	cfg.applyDefaults()
	return &Service{
		cache:   c,
		agg:     agg,
		audit:   audit,
		breaker: circuit.NewBreaker("decision-store", 5, 30*time.Second),
		cfg:     cfg,
	}
}

// AggregateOrGet 返回该市场快照的决策与"是否来自缓存"。
// 同一指纹并发调用只发生一次聚合计算。
func (s *Service) AggregateOrGet(ctx context.Context, req Request) (*ensemble.AggregatedDecision, bool, error) {
	if len(req.Opinions) == 0 {
		return nil, false, ensemble.ErrInsufficientData
	}
	pair := symbol.Normalize(req.AssetPair)
	fp := ensemble.Fingerprint(pair, req.Timeframe, req.SnapshotTime, req.Opinions)
	in := ensemble.Input{
		AssetPair:    pair,
		Timeframe:    req.Timeframe,
		SnapshotTime: req.SnapshotTime,
		MarketRegime: req.MarketRegime,
		Opinions:     req.Opinions,
	}

	if s.breaker != nil && !s.breaker.Allow() {
		// 熔断打开：降级为无缓存聚合
		logger.Warnf("service: 持久层熔断中，跳过缓存直接聚合 (pair=%s fp=%s)", pair, shortFP(fp))
		decision, err := s.agg.Aggregate(ctx, in)
		if err != nil {
			return nil, false, err
		}
		decision.TraceID = uuid.NewString()
		s.recordAudit(ctx, decision, false)
		return decision, false, nil
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()

	decision, cached, err := s.cache.GetOrCompute(cctx, pair, fp, s.ttlFor(req.Timeframe), func(ctx context.Context) (*ensemble.AggregatedDecision, error) {
		d, aggErr := s.agg.Aggregate(ctx, in)
		if aggErr != nil {
			return nil, aggErr
		}
		d.TraceID = uuid.NewString()
		return d, nil
	})
	if err != nil {
		if isStoreFailure(err) {
			s.breaker.RecordFailure()
		}
		return nil, false, err
	}
	s.breaker.RecordSuccess()

	if cached {
		logger.Debugf("service: 缓存命中 (pair=%s fp=%s action=%s)", pair, shortFP(fp), decision.Action)
	} else {
		logger.Infof("service: 新鲜聚合 (pair=%s fp=%s action=%s confidence=%.1f providers=%d)",
			pair, shortFP(fp), decision.Action, decision.Confidence, len(decision.Opinions))
		s.recordAudit(ctx, decision, false)
	}
	return decision, cached, nil
}

// Invalidate 强制失效某指纹的缓存条目。
func (s *Service) Invalidate(ctx context.Context, fingerprint string) error {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.cache.Invalidate(cctx, fingerprint)
}

// CacheStats 返回某资产对的缓存统计。
func (s *Service) CacheStats(ctx context.Context, assetPair string) (store.CacheStatistics, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.cache.Stats(cctx, symbol.Normalize(assetPair))
}

func (s *Service) ttlFor(timeframe string) time.Duration {
	if s.cfg.DefaultTTL > 0 {
		return s.cfg.DefaultTTL
	}
	if d, ok := scheduler.ParseTimeframe(timeframe); ok {
		return d
	}
	return 0
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// recordAudit 落审计线：DB 记录 + 分段文本 dump。失败只告警。
func (s *Service) recordAudit(ctx context.Context, d *ensemble.AggregatedDecision, cached bool) {
	logger.LogDecisionAudit(
		d.AssetPair,
		d.TraceID,
		jsonutil.MustMarshal(d),
		jsonutil.MustMarshal(d.Breakdown),
		jsonutil.MustMarshal(d.Opinions),
	)
	if s.audit == nil {
		return
	}
	rec := auditlog.Record{
		TraceID:      d.TraceID,
		Timestamp:    time.Now().UnixMilli(),
		AssetPair:    d.AssetPair,
		Timeframe:    d.Timeframe,
		Fingerprint:  d.DecisionHash,
		Action:       string(d.Action),
		Confidence:   d.Confidence,
		MarketRegime: d.MarketRegime,
		Cached:       cached,
		Opinions:     d.Opinions,
		Breakdown:    d.Breakdown,
	}
	if _, err := s.audit.Insert(ctx, rec); err != nil {
		logger.Warnf("service: 审计写入失败 (trace=%s): %v", d.TraceID, err)
	}
}

func isStoreFailure(err error) bool {
	return errors.Is(err, store.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
