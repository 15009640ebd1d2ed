package regime

import (
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"
)

// 中文说明：
// 市场状态粗分类，用于切分 provider 绩效统计的维度：
// 同一个模型在趋势市和震荡市的胜率往往差别很大。
// 分类只依赖调用方传入的 K 线窗口，不触达任何行情源。

const (
	Trending = "trending"
	Ranging  = "ranging"
	Volatile = "volatile"
)

// Candle 一根 K 线。
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume,omitempty"`
}

// Config 分类阈值。零值使用默认。
type Config struct {
	ADXPeriod           int     // 默认 14
	TrendThreshold      float64 // ADX 高于该值视为趋势市，默认 25
	VolatilityThreshold float64 // ATR/收盘价 高于该值视为高波动，默认 0.03
}

func (c *Config) applyDefaults() {
	if c.ADXPeriod <= 0 {
		c.ADXPeriod = 14
	}
	if c.TrendThreshold <= 0 {
		c.TrendThreshold = 25
	}
	if c.VolatilityThreshold <= 0 {
		c.VolatilityThreshold = 0.03
	}
}

// Classifier 市场状态分类器。无状态，可并发使用。
type Classifier struct {
	cfg Config
}

func NewClassifier(cfg Config) *Classifier {
	cfg.applyDefaults()
	return &Classifier{cfg: cfg}
}

// MinCandles 返回可靠分类所需的最少 K 线数。
func (c *Classifier) MinCandles() int {
	// ADX 需要约两个周期热身
	return c.cfg.ADXPeriod*2 + 1
}

// Classify 对 K 线窗口做分类。优先判定波动，其次趋势，兜底震荡。
func (c *Classifier) Classify(candles []Candle) (string, error) {
	if len(candles) < c.MinCandles() {
		return "", fmt.Errorf("regime: K 线不足，至少需要 %d 根，实际 %d", c.MinCandles(), len(candles))
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, k := range candles {
		highs[i] = k.High
		lows[i] = k.Low
		closes[i] = k.Close
	}
	lastClose := closes[len(closes)-1]
	if lastClose <= 0 {
		return "", fmt.Errorf("regime: 收盘价非法: %v", lastClose)
	}

	atr := lastValue(talib.Atr(highs, lows, closes, c.cfg.ADXPeriod))
	if atr/lastClose >= c.cfg.VolatilityThreshold {
		return Volatile, nil
	}
	adx := lastValue(talib.Adx(highs, lows, closes, c.cfg.ADXPeriod))
	if adx >= c.cfg.TrendThreshold {
		return Trending, nil
	}
	return Ranging, nil
}

func lastValue(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
