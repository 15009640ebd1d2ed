package safety

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"verdict/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// 中文说明：
// 风控策略文件（policy.yaml）独立于主配置，支持热更新：
// 运维调低置信度阈值不需要重启进程。文件字段做严格解析，
// 写错键名直接报错而不是静默忽略。

// Policy 映射 policy 文件的 safety 段。
type Policy struct {
	MinConfidence     float64 `yaml:"min_confidence"`
	MinRiskReward     float64 `yaml:"min_risk_reward"`
	MaxDataAgeSeconds int     `yaml:"max_data_age_seconds"`
}

// PolicyFile policy 文件根节点。
type PolicyFile struct {
	Safety Policy `yaml:"safety"`
}

func (p Policy) toConfig() Config {
	return Config{
		MinConfidence: p.MinConfidence,
		MinRiskReward: p.MinRiskReward,
		MaxDataAge:    time.Duration(p.MaxDataAgeSeconds) * time.Second,
	}
}

// PolicyListener 在 policy 重载成功后触发。
type PolicyListener func(Config)

// PolicyRegistry 读取并监听 policy 文件。
type PolicyRegistry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   Config
	listeners []PolicyListener
}

// NewPolicyRegistry 读取 policy 文件并开始监听 FS 事件。
func NewPolicyRegistry(path string) (*PolicyRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("policy registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file failed: %w", err)
	}
	r := &PolicyRegistry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("policy reload failed (%s): %v", evt.Name, err)
			return
		}
		r.notify()
	})
	v.WatchConfig()
	return r, nil
}

// Current 返回当前生效配置。
func (r *PolicyRegistry) Current() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Subscribe 注册监听器，并立即推送一次当前配置。
func (r *PolicyRegistry) Subscribe(fn PolicyListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	cfg := r.current
	r.mu.Unlock()
	fn(cfg)
}

func (r *PolicyRegistry) reload() error {
	pf, err := readPolicyFile(r.path)
	if err != nil {
		return err
	}
	cfg := pf.Safety.toConfig()
	cfg.applyDefaults()
	r.mu.Lock()
	r.current = cfg
	r.mu.Unlock()
	logger.Infof("policy: 已加载 min_confidence=%.1f min_risk_reward=%.2f max_data_age=%s",
		cfg.MinConfidence, cfg.MinRiskReward, cfg.MaxDataAge)
	return nil
}

func (r *PolicyRegistry) notify() {
	r.mu.RLock()
	listeners := append([]PolicyListener(nil), r.listeners...)
	cfg := r.current
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

func readPolicyFile(path string) (PolicyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("read policy file failed: %w", err)
	}
	var pf PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return PolicyFile{}, fmt.Errorf("parse policy file failed: %w", err)
	}
	return pf, nil
}
