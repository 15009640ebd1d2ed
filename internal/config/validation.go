package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Ensemble.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Safety.validate(); err != nil {
		return err
	}
	if err := c.Regime.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EnsembleConfig) validate() error {
	if e.MinProviders < 1 {
		return fmt.Errorf("ensemble.min_providers must be >= 1")
	}
	if e.MultiplierFloor > e.MultiplierCap {
		return fmt.Errorf("ensemble.multiplier_floor (%.2f) must not exceed multiplier_cap (%.2f)",
			e.MultiplierFloor, e.MultiplierCap)
	}
	if e.MultiplierFloor < 0 {
		return fmt.Errorf("ensemble.multiplier_floor must be >= 0")
	}
	return nil
}

func (c *CacheConfig) validate() error {
	if c.DefaultTTLSeconds < 0 {
		return fmt.Errorf("cache.default_ttl_seconds must be >= 0")
	}
	return nil
}

func (s *SafetyConfig) validate() error {
	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		return fmt.Errorf("safety.min_confidence must be in [0, 100]")
	}
	if s.MinRiskReward < 0 {
		return fmt.Errorf("safety.min_risk_reward must be >= 0")
	}
	return nil
}

func (r *RegimeConfig) validate() error {
	if r.ADXPeriod < 2 {
		return fmt.Errorf("regime.adx_period must be >= 2")
	}
	if r.VolatilityThreshold <= 0 || r.VolatilityThreshold >= 1 {
		return fmt.Errorf("regime.volatility_threshold must be in (0, 1)")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	return nil
}
