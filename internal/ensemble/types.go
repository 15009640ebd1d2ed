package ensemble

import (
	"time"
)

// 中文说明：
// 本文件定义集成决策的核心数据结构：单个 Provider 的意见投票与聚合产出。
// ProviderOpinion 一经传入聚合即视为不可变；AggregatedDecision 入缓存后不可变。

// Action 动作枚举（buy/sell/hold 三态）。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Directional 是否为方向性动作（非观望）。
func (a Action) Directional() bool {
	return a == ActionBuy || a == ActionSell
}

// Valid 是否落在三态枚举内。
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// ProviderOpinion 单个信号源对某个市场快照的原始投票。
type ProviderOpinion struct {
	ProviderID string    `json:"provider_id"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // 0-100
	Rationale  string    `json:"rationale,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// AggregatedDecision 聚合后的最终决策。DecisionHash 即内容指纹，缓存以它为键。
type AggregatedDecision struct {
	AssetPair    string            `json:"asset_pair"`
	Timeframe    string            `json:"timeframe"`
	Timestamp    time.Time         `json:"timestamp"` // 已按 timeframe 规整的快照时间
	DecisionHash string            `json:"decision_hash"`
	Action       Action            `json:"action"`
	Confidence   float64           `json:"confidence"` // 0-100
	MarketRegime string            `json:"market_regime,omitempty"`
	Opinions     []ProviderOpinion `json:"opinions"` // 按投票顺序
	Breakdown    *VoteBreakdown    `json:"breakdown,omitempty"`
	TraceID      string            `json:"trace_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
}

// VoteBreakdown 记录各动作的加权得分，供审计与通知展示分歧。
type VoteBreakdown struct {
	TotalScore float64      `json:"total_score"`
	Votes      []ActionVote `json:"votes,omitempty"`
}

// ActionVote 单个动作的加权票数与投票者。
type ActionVote struct {
	Action Action   `json:"action"`
	Score  float64  `json:"score"`
	Voters []string `json:"voters,omitempty"`
}
