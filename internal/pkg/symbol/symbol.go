package symbol

import (
	"strings"
)

// 中文说明：
// 资产对归一化。缓存指纹与绩效统计都以归一化后的 "BASE/QUOTE" 为键，
// 否则 "btcusdt" 与 "BTC/USDT" 会被当成两个市场。

type Symbol struct {
	Base  string
	Quote string
}

// Internal 返回内部标准格式 "BASE/QUOTE"。
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Compact 返回无分隔符格式 "BASEQUOTE"。
func (s Symbol) Compact() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "USD", "BTC", "ETH", "BNB"}

// Parse 解析任意常见写法："BTC/USDT"、"BTCUSDT"、"btc/usdt:USDT"。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	// 去掉合约结算后缀 "BTC/USDT:USDT"
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize 返回标准 "BASE/QUOTE"；解析失败时回退为大写原文，
// 保证同一输入始终映射到同一个键。
func Normalize(s string) string {
	sym := Parse(s)
	if internal := sym.Internal(); internal != "" {
		return internal
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
