package performance

import (
	"context"

	"verdict/internal/pkg/symbol"
	"verdict/internal/store"
)

// NeutralWinRate 无历史记录时的中性先验胜率。
const NeutralWinRate = 50.0

// WeightSource 把持久化的绩效记录适配成聚合器的只读胜率来源。
// 未知的 (provider, asset, regime) 组合返回中性先验，不产生写副作用。
type WeightSource struct {
	store store.PerformanceStore
}

func NewWeightSource(st store.PerformanceStore) *WeightSource {
	return &WeightSource{store: st}
}

func (w *WeightSource) WinRate(ctx context.Context, providerID, assetPair, regime string) (float64, error) {
	if w == nil || w.store == nil {
		return NeutralWinRate, nil
	}
	rate, ok, err := w.store.WinRate(ctx, providerID, symbol.Normalize(assetPair), regime)
	if err != nil {
		return 0, err
	}
	if !ok {
		return NeutralWinRate, nil
	}
	return rate, nil
}
