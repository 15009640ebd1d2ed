package app

import (
	"fmt"
	"strings"

	"verdict/internal/config"
)

// StartupSummary 启动时打印的一次性配置摘要。
type StartupSummary struct {
	HTTPAddr     string
	StorePath    string
	AuditEnabled bool
	PolicyWatch  bool
	Ensemble     EnsembleSummary
	Cache        CacheSummary
}

type EnsembleSummary struct {
	MinProviders    int
	MultiplierFloor float64
	MultiplierCap   float64
}

type CacheSummary struct {
	DefaultTTLSeconds    int
	SweepIntervalSeconds int
}

func buildSummary(cfg *config.Config, auditEnabled, policyWatch bool) *StartupSummary {
	return &StartupSummary{
		HTTPAddr:     cfg.App.HTTPAddr,
		StorePath:    cfg.Store.Path,
		AuditEnabled: auditEnabled,
		PolicyWatch:  policyWatch,
		Ensemble: EnsembleSummary{
			MinProviders:    cfg.Ensemble.MinProviders,
			MultiplierFloor: cfg.Ensemble.MultiplierFloor,
			MultiplierCap:   cfg.Ensemble.MultiplierCap,
		},
		Cache: CacheSummary{
			DefaultTTLSeconds:    cfg.Cache.DefaultTTLSeconds,
			SweepIntervalSeconds: cfg.Cache.SweepIntervalSeconds,
		},
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[服务 (SERVICE)]")
	fmt.Printf("  监听地址: %s\n", s.HTTPAddr)
	fmt.Printf("  决策库: %s\n", s.StorePath)
	fmt.Printf("  审计库: %s\n", formatEnabled(s.AuditEnabled))
	fmt.Printf("  策略热更新: %s\n", formatEnabled(s.PolicyWatch))
	fmt.Println()

	fmt.Println("[聚合 (ENSEMBLE)]")
	fmt.Printf("  最小 provider 数: %d\n", s.Ensemble.MinProviders)
	fmt.Printf("  绩效乘数区间: [%.2f, %.2f]\n", s.Ensemble.MultiplierFloor, s.Ensemble.MultiplierCap)
	fmt.Println()

	fmt.Println("[缓存 (CACHE)]")
	if s.Cache.DefaultTTLSeconds > 0 {
		fmt.Printf("  默认 TTL: %ds\n", s.Cache.DefaultTTLSeconds)
	} else {
		fmt.Println("  默认 TTL: 按 timeframe 推导")
	}
	fmt.Printf("  清扫周期: %ds\n", s.Cache.SweepIntervalSeconds)
	fmt.Println(strings.Repeat("=", 80))
}

func formatEnabled(on bool) string {
	if on {
		return "启用"
	}
	return "关闭"
}
