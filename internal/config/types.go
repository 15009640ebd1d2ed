package config

import (
	"strings"
	"time"
)

// Config 是 Verdict 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Ensemble EnsembleConfig `toml:"ensemble"`
	Cache    CacheConfig    `toml:"cache"`
	Safety   SafetyConfig   `toml:"safety"`
	Regime   RegimeConfig   `toml:"regime"`
	Store    StoreConfig    `toml:"store"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
	AuditLog  string `toml:"audit_log_path"`
	AuditDump bool   `toml:"audit_dump_payload"`
}

// EnsembleConfig 控制加权投票的各个旋钮。
type EnsembleConfig struct {
	MinProviders    int     `toml:"min_providers"`
	TieEpsilon      float64 `toml:"tie_epsilon"`
	MultiplierGain  float64 `toml:"multiplier_gain"`
	MultiplierFloor float64 `toml:"multiplier_floor"`
	MultiplierCap   float64 `toml:"multiplier_cap"`
}

type CacheConfig struct {
	DefaultTTLSeconds    int `toml:"default_ttl_seconds"`    // <=0 时按 timeframe 推导
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"` // 过期清扫周期
	StoreTimeoutSeconds  int `toml:"store_timeout_seconds"`  // 持久层兜底超时
}

func (c CacheConfig) DefaultTTL() time.Duration {
	if c.DefaultTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c CacheConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// SafetyConfig 是安全闸门的静态兜底值；policy_path 指向可热更新的策略文件。
type SafetyConfig struct {
	PolicyPath        string  `toml:"policy_path"`
	MinConfidence     float64 `toml:"min_confidence"`
	MinRiskReward     float64 `toml:"min_risk_reward"`
	MaxDataAgeSeconds int     `toml:"max_data_age_seconds"`
}

func (s SafetyConfig) MaxDataAge() time.Duration {
	return time.Duration(s.MaxDataAgeSeconds) * time.Second
}

type RegimeConfig struct {
	ADXPeriod           int     `toml:"adx_period"`
	TrendThreshold      float64 `toml:"trend_threshold"`
	VolatilityThreshold float64 `toml:"volatility_threshold"`
}

type StoreConfig struct {
	Path      string `toml:"path"`       // 决策缓存/绩效库（gorm + sqlite）
	AuditPath string `toml:"audit_path"` // 审计库，留空则关闭 DB 审计
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
