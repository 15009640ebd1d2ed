package safety

import (
	"fmt"
	"sync"
	"time"

	"verdict/internal/ensemble"

	"github.com/shopspring/decimal"
)

// 中文说明：
// 交易前安全闸。纯校验：不抛错、不改状态、不触达执行层。
// 所有违规一次性收集完（不短路），调用方一眼看到全部问题。
// 零违规即 "safe"；低置信度等业务状况以数据（violation 列表）表达。

// Violation 一条人类可读的违规原因。
type Violation struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

const (
	CodeLowConfidence  = "low_confidence"
	CodeMissingStop    = "missing_stop_loss"
	CodeMissingTarget  = "missing_take_profit"
	CodeBadPosition    = "invalid_position_size"
	CodeStaleData      = "stale_market_data"
	CodeLowRiskReward  = "low_risk_reward"
	CodeInvalidPricing = "invalid_pricing"
)

// RiskPayload 随决策提交的仓位与风控参数。
type RiskPayload struct {
	PositionSizeUSD decimal.Decimal `json:"position_size_usd"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	DataStale       bool            `json:"data_stale"`
	DataAge         time.Duration   `json:"-"`
}

// Config 安全闸阈值。可通过 policy registry 热更新。
type Config struct {
	MinConfidence float64       // 默认 70
	MinRiskReward float64       // 默认 1.0
	MaxDataAge    time.Duration // 0 表示仅依赖 DataStale 标记
}

func (c *Config) applyDefaults() {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 70
	}
	if c.MinRiskReward <= 0 {
		c.MinRiskReward = 1.0
	}
}

// Gate 安全闸。并发安全；配置可热替换。
type Gate struct {
	mu  sync.RWMutex
	cfg Config
}

func NewGate(cfg Config) *Gate {
	cfg.applyDefaults()
	return &Gate{cfg: cfg}
}

// SetConfig 热更新阈值（policy 文件变更时由 registry 调用）。
func (g *Gate) SetConfig(cfg Config) {
	cfg.applyDefaults()
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// Config 返回当前生效阈值。
func (g *Gate) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Validate 校验决策与风控参数，返回全部违规；空切片表示可放行。
func (g *Gate) Validate(decision *ensemble.AggregatedDecision, risk RiskPayload) []Violation {
	cfg := g.Config()
	var violations []Violation

	if decision == nil {
		return []Violation{{Code: CodeInvalidPricing, Reason: "决策为空"}}
	}

	if decision.Confidence < cfg.MinConfidence {
		violations = append(violations, Violation{
			Code:   CodeLowConfidence,
			Reason: fmt.Sprintf("置信度 %.1f 低于阈值 %.1f", decision.Confidence, cfg.MinConfidence),
		})
	}
	if risk.DataStale || (cfg.MaxDataAge > 0 && risk.DataAge > cfg.MaxDataAge) {
		violations = append(violations, Violation{
			Code:   CodeStaleData,
			Reason: "决策依据的行情数据已过期",
		})
	}

	// 方向性动作才需要仓位与止损止盈
	if !decision.Action.Directional() {
		return violations
	}

	if risk.PositionSizeUSD.LessThanOrEqual(decimal.Zero) {
		violations = append(violations, Violation{
			Code:   CodeBadPosition,
			Reason: fmt.Sprintf("仓位必须大于 0，当前 %s", risk.PositionSizeUSD),
		})
	}
	missingStop := risk.StopLoss.LessThanOrEqual(decimal.Zero)
	missingTarget := risk.TakeProfit.LessThanOrEqual(decimal.Zero)
	if missingStop {
		violations = append(violations, Violation{Code: CodeMissingStop, Reason: "缺少止损价"})
	}
	if missingTarget {
		violations = append(violations, Violation{Code: CodeMissingTarget, Reason: "缺少止盈价"})
	}
	if missingStop || missingTarget {
		return violations
	}

	if v := checkRiskReward(decision.Action, risk, cfg.MinRiskReward); v != nil {
		violations = append(violations, *v)
	}
	return violations
}

// checkRiskReward 校验多空方向的止损/止盈相对关系与回报风险比。
func checkRiskReward(action ensemble.Action, risk RiskPayload, minRR float64) *Violation {
	entry := risk.EntryPrice
	if entry.LessThanOrEqual(decimal.Zero) {
		// 没有开仓价就无法核算比值，只校验绝对值存在性
		return nil
	}
	var reward, riskAmt decimal.Decimal
	switch action {
	case ensemble.ActionBuy:
		if risk.StopLoss.GreaterThanOrEqual(entry) || risk.TakeProfit.LessThanOrEqual(entry) {
			return &Violation{Code: CodeInvalidPricing, Reason: "做多要求 止损 < 开仓价 < 止盈"}
		}
		reward = risk.TakeProfit.Sub(entry)
		riskAmt = entry.Sub(risk.StopLoss)
	case ensemble.ActionSell:
		if risk.StopLoss.LessThanOrEqual(entry) || risk.TakeProfit.GreaterThanOrEqual(entry) {
			return &Violation{Code: CodeInvalidPricing, Reason: "做空要求 止盈 < 开仓价 < 止损"}
		}
		reward = entry.Sub(risk.TakeProfit)
		riskAmt = risk.StopLoss.Sub(entry)
	default:
		return nil
	}
	if riskAmt.LessThanOrEqual(decimal.Zero) {
		return &Violation{Code: CodeInvalidPricing, Reason: "风险额度非法"}
	}
	rr := reward.Div(riskAmt)
	if rr.LessThan(decimal.NewFromFloat(minRR)) {
		return &Violation{
			Code:   CodeLowRiskReward,
			Reason: fmt.Sprintf("回报风险比 %s 低于最小要求 %.2f", rr.StringFixed(2), minRR),
		}
	}
	return nil
}
