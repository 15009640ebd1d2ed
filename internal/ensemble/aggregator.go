package ensemble

import (
	"context"
	"fmt"
	"sort"
	"time"

	"verdict/internal/pkg/symbol"
	"verdict/internal/scheduler"
)

// 中文说明：
// 两阶段聚合：
// 阶段一 按动作合成候选——每条意见的票重 = confidence × 绩效乘数，
//        乘数以胜率 50 为中性锚点 1.0，上封顶、下保底，按动作累加得分。
// 阶段二 最高分动作胜出；epsilon 内平票优先 hold，buy/sell 不可调和的
//        平票强制 hold（分歧不得产生方向性交易）。胜出置信度 =
//        胜出得分 / 总得分 × 100，并以最高单体意见置信度为上限——
//        集成不可能比它最自信的成员更自信。
// 除读取绩效外无副作用；空意见集直接返回 ErrInsufficientData。

// WeightSource 提供 (provider, asset, regime) 的历史胜率（0-100）。
// 对聚合器严格只读；未知组合返回中性值 50。
type WeightSource interface {
	WinRate(ctx context.Context, providerID, assetPair, regime string) (float64, error)
}

// Config 聚合参数。零值字段使用默认值。
type Config struct {
	MinProviders    int     // 少于该数量不形成方向性结论，默认 1
	TieEpsilon      float64 // 平票判定的得分容差，默认 1e-6
	MultiplierGain  float64 // 胜率每偏离中性 50 个点对应的乘数增益，默认 0.5
	MultiplierFloor float64 // 乘数下限，默认 0.5
	MultiplierCap   float64 // 乘数上限，默认 1.5
}

func (c *Config) applyDefaults() {
	if c.MinProviders <= 0 {
		c.MinProviders = 1
	}
	if c.TieEpsilon <= 0 {
		c.TieEpsilon = 1e-6
	}
	if c.MultiplierGain <= 0 {
		c.MultiplierGain = 0.5
	}
	if c.MultiplierFloor <= 0 {
		c.MultiplierFloor = 0.5
	}
	if c.MultiplierCap <= 0 {
		c.MultiplierCap = 1.5
	}
}

// Input 一次聚合的完整输入。
type Input struct {
	AssetPair    string
	Timeframe    string
	SnapshotTime time.Time
	MarketRegime string
	Opinions     []ProviderOpinion
}

// Aggregator 集成聚合器。无内部可变状态，可并发使用。
type Aggregator struct {
	weights WeightSource
	cfg     Config
	nowFn   func() time.Time
}

func NewAggregator(weights WeightSource, cfg Config) *Aggregator {
	cfg.applyDefaults()
	return &Aggregator{weights: weights, cfg: cfg, nowFn: time.Now}
}

// Aggregate 执行两阶段聚合，返回带指纹的最终决策。
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (*AggregatedDecision, error) {
	if len(in.Opinions) == 0 {
		return nil, ErrInsufficientData
	}
	if err := ValidateOpinions(in.Opinions); err != nil {
		return nil, err
	}

	pair := symbol.Normalize(in.AssetPair)
	bucket := scheduler.BucketStart(in.SnapshotTime, in.Timeframe)

	// 阶段一：按动作加权计票
	scores := map[Action]float64{}
	voters := map[Action][]string{}
	var total, maxConf, confSum float64
	allHold := true
	for _, o := range in.Opinions {
		winRate := neutralWinRate
		if a.weights != nil {
			wr, err := a.weights.WinRate(ctx, o.ProviderID, pair, in.MarketRegime)
			if err != nil {
				return nil, fmt.Errorf("读取 provider 绩效失败 (%s): %w", o.ProviderID, err)
			}
			winRate = wr
		}
		w := o.Confidence * a.multiplier(winRate)
		scores[o.Action] += w
		voters[o.Action] = append(voters[o.Action], o.ProviderID)
		total += w
		confSum += o.Confidence
		if o.Confidence > maxConf {
			maxConf = o.Confidence
		}
		if o.Action != ActionHold {
			allHold = false
		}
	}
	avgConf := confSum / float64(len(in.Opinions))

	decision := &AggregatedDecision{
		AssetPair:    pair,
		Timeframe:    in.Timeframe,
		Timestamp:    bucket,
		DecisionHash: Fingerprint(pair, in.Timeframe, in.SnapshotTime, in.Opinions),
		MarketRegime: in.MarketRegime,
		Opinions:     append([]ProviderOpinion(nil), in.Opinions...),
		Breakdown:    buildVoteBreakdown(scores, voters, total),
		CreatedAt:    a.now().UTC(),
	}

	// 成员不足或全员观望：无方向性结论，置信度取意见均值
	if len(in.Opinions) < a.cfg.MinProviders || allHold {
		decision.Action = ActionHold
		decision.Confidence = clamp(avgConf, 0, 100)
		return decision, nil
	}

	// 阶段二：决出胜者并校准置信度
	winner, forced := resolveWinner(scores, a.cfg.TieEpsilon)
	decision.Action = winner
	if forced || total <= 0 || scores[winner] <= 0 {
		decision.Confidence = clamp(avgConf, 0, 100)
		return decision, nil
	}
	conf := scores[winner] / total * 100
	if conf > maxConf {
		conf = maxConf
	}
	decision.Confidence = clamp(conf, 0, 100)
	return decision, nil
}

const neutralWinRate = 50.0

// multiplier 把胜率映射为票重乘数。线性、单调，50 锚定 1.0。
func (a *Aggregator) multiplier(winRate float64) float64 {
	m := 1 + (winRate-neutralWinRate)/neutralWinRate*a.cfg.MultiplierGain
	if m < a.cfg.MultiplierFloor {
		m = a.cfg.MultiplierFloor
	}
	if m > a.cfg.MultiplierCap {
		m = a.cfg.MultiplierCap
	}
	return m
}

// resolveWinner 返回胜出动作；forced=true 表示 buy/sell 不可调和平票被强制 hold。
func resolveWinner(scores map[Action]float64, eps float64) (Action, bool) {
	best := -1.0
	for _, s := range scores {
		if s > best {
			best = s
		}
	}
	// 固定顺序遍历，保证平票集合确定
	var tied []Action
	for _, act := range []Action{ActionBuy, ActionSell, ActionHold} {
		s, ok := scores[act]
		if !ok {
			continue
		}
		if s >= best-eps {
			tied = append(tied, act)
		}
	}
	if len(tied) == 1 {
		return tied[0], false
	}
	for _, act := range tied {
		if act == ActionHold {
			return ActionHold, false
		}
	}
	return ActionHold, true
}

func buildVoteBreakdown(scores map[Action]float64, voters map[Action][]string, total float64) *VoteBreakdown {
	if len(scores) == 0 {
		return nil
	}
	bd := &VoteBreakdown{TotalScore: total}
	for act, s := range scores {
		ids := append([]string(nil), voters[act]...)
		sort.Strings(ids)
		bd.Votes = append(bd.Votes, ActionVote{Action: act, Score: s, Voters: ids})
	}
	sort.SliceStable(bd.Votes, func(i, j int) bool {
		if bd.Votes[i].Score != bd.Votes[j].Score {
			return bd.Votes[i].Score > bd.Votes[j].Score
		}
		return bd.Votes[i].Action < bd.Votes[j].Action
	})
	return bd
}

func (a *Aggregator) now() time.Time {
	if a.nowFn != nil {
		return a.nowFn()
	}
	return time.Now()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
