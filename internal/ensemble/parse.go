package ensemble

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// 中文说明：
// Provider 输出形态并不统一：confidence 可能是数字也可能是字符串 "75"，
// action 可能写成 long/short/wait。边界解析在这里统一收口，
// 非法载荷直接拒绝，不把松散 map 带进聚合算法。

// ParseOpinions 从 JSON 数组解析 Provider 意见，做同义词与数值纠偏。
func ParseOpinions(raw string) ([]ProviderOpinion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("opinions 载荷为空")
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("opinions 非合法 JSON")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("opinions 根节点必须是 JSON 数组")
	}

	var (
		out     []ProviderOpinion
		nodeErr error
		idx     int
	)
	parsed.ForEach(func(_, value gjson.Result) bool {
		idx++
		if !value.IsObject() {
			nodeErr = fmt.Errorf("opinion#%d 必须是对象", idx)
			return false
		}
		op, err := parseOpinionNode(value)
		if err != nil {
			nodeErr = fmt.Errorf("opinion#%d: %w", idx, err)
			return false
		}
		out = append(out, op)
		return true
	})
	if nodeErr != nil {
		return nil, nodeErr
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("opinions 数组为空")
	}
	return out, nil
}

func parseOpinionNode(value gjson.Result) (ProviderOpinion, error) {
	providerID := strings.TrimSpace(firstString(value, "provider_id", "provider", "model"))
	if providerID == "" {
		return ProviderOpinion{}, fmt.Errorf("缺少 provider_id")
	}
	rawAction := strings.TrimSpace(value.Get("action").String())
	action := NormalizeAction(rawAction)
	if action == "" {
		return ProviderOpinion{}, fmt.Errorf("无法识别的 action: %q", rawAction)
	}
	conf, err := coerceConfidence(value.Get("confidence"))
	if err != nil {
		return ProviderOpinion{}, err
	}

	op := ProviderOpinion{
		ProviderID: providerID,
		Action:     action,
		Confidence: conf,
		Rationale:  strings.TrimSpace(firstString(value, "rationale", "reasoning")),
	}
	if ts := value.Get("timestamp"); ts.Exists() {
		op.Timestamp = coerceTimestamp(ts)
	}
	return op, nil
}

func firstString(value gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := value.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// coerceConfidence 兼容数字与字符串两种写法，范围之外直接拒绝。
func coerceConfidence(v gjson.Result) (float64, error) {
	if !v.Exists() {
		return 0, fmt.Errorf("缺少 confidence")
	}
	var conf float64
	switch v.Type {
	case gjson.Number:
		conf = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence 非数值: %q", v.String())
		}
		conf = parsed
	default:
		return 0, fmt.Errorf("confidence 类型非法")
	}
	if conf < 0 || conf > 100 {
		return 0, fmt.Errorf("confidence 范围0-100: %v", conf)
	}
	return conf, nil
}

func coerceTimestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		sec := v.Int()
		// 毫秒时间戳兼容
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(v.String())); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
