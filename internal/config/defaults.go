package config

import "strings"

// 默认值常量
const (
	defaultAppEnv              = "dev"
	defaultAppLogLevel         = "info"
	defaultAppHTTPAddr         = ":9926"
	defaultAppLogPath          = "/data/logs/verdict.log"
	defaultAppAuditLogPath     = "/data/logs/verdict-audit.log"
	defaultEnsembleMinVoters   = 1
	defaultEnsembleTieEpsilon  = 1e-6
	defaultEnsembleGain        = 0.5
	defaultEnsembleFloor       = 0.5
	defaultEnsembleCap         = 1.5
	defaultCacheSweepSeconds   = 300
	defaultCacheStoreTimeout   = 5
	defaultSafetyPolicyPath    = "configs/policy.yaml"
	defaultSafetyMinConfidence = 70
	defaultSafetyMinRR         = 1
	defaultSafetyMaxDataAge    = 120
	defaultRegimeADXPeriod     = 14
	defaultRegimeTrend         = 25
	defaultRegimeVolatility    = 0.03
	defaultStorePath           = "/data/db/verdict.db"
	defaultStoreAuditPath      = "/data/db/decision_audit.db"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Ensemble.applyDefaults(keys)
	c.Cache.applyDefaults(keys)
	c.Safety.applyDefaults(keys)
	c.Regime.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.audit_log_path", &a.AuditLog, defaultAppAuditLogPath),
	)
}

func (e *EnsembleConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "ensemble.min_providers",
			need:  func() bool { return e.MinProviders <= 0 },
			apply: func() { e.MinProviders = defaultEnsembleMinVoters },
		},
		fieldDefault{
			key:   "ensemble.tie_epsilon",
			need:  func() bool { return e.TieEpsilon <= 0 },
			apply: func() { e.TieEpsilon = defaultEnsembleTieEpsilon },
		},
		fieldDefault{
			key:   "ensemble.multiplier_gain",
			need:  func() bool { return e.MultiplierGain <= 0 },
			apply: func() { e.MultiplierGain = defaultEnsembleGain },
		},
		fieldDefault{
			key:   "ensemble.multiplier_floor",
			need:  func() bool { return e.MultiplierFloor <= 0 },
			apply: func() { e.MultiplierFloor = defaultEnsembleFloor },
		},
		fieldDefault{
			key:   "ensemble.multiplier_cap",
			need:  func() bool { return e.MultiplierCap <= 0 },
			apply: func() { e.MultiplierCap = defaultEnsembleCap },
		},
	)
}

func (c *CacheConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "cache.sweep_interval_seconds",
			need:  func() bool { return c.SweepIntervalSeconds <= 0 },
			apply: func() { c.SweepIntervalSeconds = defaultCacheSweepSeconds },
		},
		fieldDefault{
			key:   "cache.store_timeout_seconds",
			need:  func() bool { return c.StoreTimeoutSeconds <= 0 },
			apply: func() { c.StoreTimeoutSeconds = defaultCacheStoreTimeout },
		},
	)
}

func (s *SafetyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("safety.policy_path", &s.PolicyPath, defaultSafetyPolicyPath),
		fieldDefault{
			key:   "safety.min_confidence",
			need:  func() bool { return s.MinConfidence <= 0 },
			apply: func() { s.MinConfidence = defaultSafetyMinConfidence },
		},
		fieldDefault{
			key:   "safety.min_risk_reward",
			need:  func() bool { return s.MinRiskReward <= 0 },
			apply: func() { s.MinRiskReward = defaultSafetyMinRR },
		},
		fieldDefault{
			key:   "safety.max_data_age_seconds",
			need:  func() bool { return s.MaxDataAgeSeconds <= 0 },
			apply: func() { s.MaxDataAgeSeconds = defaultSafetyMaxDataAge },
		},
	)
}

func (r *RegimeConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "regime.adx_period",
			need:  func() bool { return r.ADXPeriod <= 0 },
			apply: func() { r.ADXPeriod = defaultRegimeADXPeriod },
		},
		fieldDefault{
			key:   "regime.trend_threshold",
			need:  func() bool { return r.TrendThreshold <= 0 },
			apply: func() { r.TrendThreshold = defaultRegimeTrend },
		},
		fieldDefault{
			key:   "regime.volatility_threshold",
			need:  func() bool { return r.VolatilityThreshold <= 0 },
			apply: func() { r.VolatilityThreshold = defaultRegimeVolatility },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.audit_path", &s.AuditPath, defaultStoreAuditPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
