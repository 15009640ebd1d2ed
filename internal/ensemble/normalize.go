package ensemble

import "strings"

// NormalizeAction 统一动作名称，兼容 long/short/wait 等同义词。
// 无法识别的输入返回空串，由边界校验拒绝。
func NormalizeAction(a string) Action {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	a = strings.ToLower(strings.TrimSpace(a))
	a = replacer.Replace(a)
	switch a {
	case "buy", "long", "open_long", "go_long", "enter_long", "bullish":
		return ActionBuy
	case "sell", "short", "open_short", "go_short", "enter_short", "bearish":
		return ActionSell
	case "hold", "wait", "stay", "neutral", "flat", "none":
		return ActionHold
	default:
		return ""
	}
}
