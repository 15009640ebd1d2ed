package ensemble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWeights struct {
	rates map[string]float64
	err   error
}

func (s *stubWeights) WinRate(_ context.Context, providerID, _, _ string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if r, ok := s.rates[providerID]; ok {
		return r, nil
	}
	return 50, nil
}

func snapshotTime() time.Time {
	return time.Date(2025, 6, 1, 12, 7, 30, 0, time.UTC)
}

func opinion(id string, action Action, conf float64) ProviderOpinion {
	return ProviderOpinion{ProviderID: id, Action: action, Confidence: conf}
}

func TestAggregate_EmptyOpinions(t *testing.T) {
	agg := NewAggregator(&stubWeights{}, Config{})
	_, err := agg.Aggregate(context.Background(), Input{AssetPair: "BTC/USDT", Timeframe: "15m", SnapshotTime: snapshotTime()})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestAggregate_MajorityBuy(t *testing.T) {
	agg := NewAggregator(&stubWeights{}, Config{})
	d, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "BTC/USDT",
		Timeframe:    "15m",
		SnapshotTime: snapshotTime(),
		Opinions: []ProviderOpinion{
			opinion("gpt", ActionBuy, 80),
			opinion("claude", ActionBuy, 75),
			opinion("local", ActionHold, 50),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, d.Action)
	// 胜出置信度不得超过最自信的单体意见
	assert.LessOrEqual(t, d.Confidence, 80.0)
	assert.Greater(t, d.Confidence, 50.0)
	assert.NotEmpty(t, d.DecisionHash)
	require.NotNil(t, d.Breakdown)
	assert.Equal(t, ActionBuy, d.Breakdown.Votes[0].Action)
	assert.Equal(t, []string{"claude", "gpt"}, d.Breakdown.Votes[0].Voters)
}

func TestAggregate_BuySellTieForcesHold(t *testing.T) {
	agg := NewAggregator(&stubWeights{}, Config{})
	d, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "ETH/USDT",
		Timeframe:    "1h",
		SnapshotTime: snapshotTime(),
		Opinions: []ProviderOpinion{
			opinion("a", ActionBuy, 60),
			opinion("b", ActionSell, 60),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionHold, d.Action)
	// 强制 hold 的置信度退化为意见均值
	assert.InDelta(t, 60.0, d.Confidence, 1e-9)
}

func TestAggregate_TiePrefersHold(t *testing.T) {
	agg := NewAggregator(&stubWeights{}, Config{})
	d, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "ETH/USDT",
		Timeframe:    "1h",
		SnapshotTime: snapshotTime(),
		Opinions: []ProviderOpinion{
			opinion("a", ActionBuy, 60),
			opinion("b", ActionHold, 60),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionHold, d.Action)
}

func TestAggregate_AllHold(t *testing.T) {
	agg := NewAggregator(&stubWeights{}, Config{})
	d, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "BTC/USDT",
		Timeframe:    "15m",
		SnapshotTime: snapshotTime(),
		Opinions: []ProviderOpinion{
			opinion("a", ActionHold, 90),
			opinion("b", ActionHold, 70),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionHold, d.Action)
	assert.InDelta(t, 80.0, d.Confidence, 1e-9)
}

func TestAggregate_MinProvidersNotMet(t *testing.T) {
	agg := NewAggregator(&stubWeights{}, Config{MinProviders: 3})
	d, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "BTC/USDT",
		Timeframe:    "15m",
		SnapshotTime: snapshotTime(),
		Opinions: []ProviderOpinion{
			opinion("a", ActionBuy, 90),
			opinion("b", ActionBuy, 90),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionHold, d.Action)
	assert.InDelta(t, 90.0, d.Confidence, 1e-9)
}

func TestAggregate_PerformanceWeightFlipsWinner(t *testing.T) {
	// 同等置信度下，高胜率 provider 的票应压过低胜率方
	weights := &stubWeights{rates: map[string]float64{
		"veteran": 100, // 乘数 1.5
		"rookie":  0,   // 乘数 0.5
	}}
	agg := NewAggregator(weights, Config{})
	d, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "SOL/USDT",
		Timeframe:    "4h",
		SnapshotTime: snapshotTime(),
		Opinions: []ProviderOpinion{
			opinion("veteran", ActionSell, 70),
			opinion("rookie", ActionBuy, 70),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionSell, d.Action)
}

func TestAggregate_WeightSourceErrorPropagates(t *testing.T) {
	agg := NewAggregator(&stubWeights{err: errors.New("db down")}, Config{})
	_, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "BTC/USDT",
		Timeframe:    "15m",
		SnapshotTime: snapshotTime(),
		Opinions:     []ProviderOpinion{opinion("a", ActionBuy, 60)},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestAggregate_InvalidOpinionRejected(t *testing.T) {
	agg := NewAggregator(&stubWeights{}, Config{})
	_, err := agg.Aggregate(context.Background(), Input{
		AssetPair:    "BTC/USDT",
		Timeframe:    "15m",
		SnapshotTime: snapshotTime(),
		Opinions:     []ProviderOpinion{opinion("a", ActionBuy, 120)},
	})
	assert.Error(t, err)
}

func TestMultiplier_ClampedAndAnchored(t *testing.T) {
	agg := NewAggregator(nil, Config{})
	assert.InDelta(t, 1.0, agg.multiplier(50), 1e-9)
	assert.InDelta(t, 1.5, agg.multiplier(100), 1e-9)
	assert.InDelta(t, 0.5, agg.multiplier(0), 1e-9)
	assert.InDelta(t, 1.25, agg.multiplier(75), 1e-9)
	// 极端胜率也被夹在 [floor, cap] 内
	assert.InDelta(t, 1.5, agg.multiplier(200), 1e-9)
}
