package app

import (
	"fmt"
	"strings"

	"verdict/internal/cache"
	"verdict/internal/config"
	"verdict/internal/ensemble"
	"verdict/internal/logger"
	"verdict/internal/performance"
	"verdict/internal/regime"
	"verdict/internal/safety"
	"verdict/internal/service"
	"verdict/internal/store/auditlog"
	"verdict/internal/store/gormstore"
	httpapi "verdict/internal/transport/http"
)

// build 按依赖顺序组装应用：存储 → 缓存/权重 → 聚合器 → 服务 → HTTP。
func build(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	gstore, err := gormstore.NewGormStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化决策库失败 (%s): %w", cfg.Store.Path, err)
	}
	a.closers = append(a.closers, gstore.Close)

	var audit *auditlog.AuditStore
	if strings.TrimSpace(cfg.Store.AuditPath) != "" {
		audit, err = auditlog.New(cfg.Store.AuditPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("初始化审计库失败 (%s): %w", cfg.Store.AuditPath, err)
		}
		a.closers = append(a.closers, audit.Close)
	}

	a.cache = cache.New(gstore)
	weights := performance.NewWeightSource(gstore)
	aggregator := ensemble.NewAggregator(weights, ensemble.Config{
		MinProviders:    cfg.Ensemble.MinProviders,
		TieEpsilon:      cfg.Ensemble.TieEpsilon,
		MultiplierGain:  cfg.Ensemble.MultiplierGain,
		MultiplierFloor: cfg.Ensemble.MultiplierFloor,
		MultiplierCap:   cfg.Ensemble.MultiplierCap,
	})

	svc := service.New(a.cache, aggregator, audit, service.Config{
		DefaultTTL:   cfg.Cache.DefaultTTL(),
		StoreTimeout: cfg.Cache.StoreTimeout(),
	})

	gate := safety.NewGate(safety.Config{
		MinConfidence: cfg.Safety.MinConfidence,
		MinRiskReward: cfg.Safety.MinRiskReward,
		MaxDataAge:    cfg.Safety.MaxDataAge(),
	})
	if path := strings.TrimSpace(cfg.Safety.PolicyPath); path != "" {
		registry, regErr := safety.NewPolicyRegistry(path)
		if regErr != nil {
			// 策略文件缺失不阻断启动，沿用静态阈值
			logger.Warnf("app: 安全策略文件不可用 (%s)，使用静态阈值: %v", path, regErr)
		} else {
			registry.Subscribe(gate.SetConfig)
			a.policies = registry
		}
	}

	router := &httpapi.Router{
		Service:    svc,
		Recorder:   performance.NewRecorder(gstore),
		Gate:       gate,
		Classifier: regime.NewClassifier(regime.Config{
			ADXPeriod:           cfg.Regime.ADXPeriod,
			TrendThreshold:      cfg.Regime.TrendThreshold,
			VolatilityThreshold: cfg.Regime.VolatilityThreshold,
		}),
		Audit: audit,
	}
	a.server, err = httpapi.NewServer(httpapi.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		API:  router,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Summary = buildSummary(cfg, audit != nil, a.policies != nil)
	return a, nil
}
