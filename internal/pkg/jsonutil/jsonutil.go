package jsonutil

import (
	"encoding/json"
	"strings"
)

// Pretty 重新缩进 JSON 文本；解析失败时原样返回。
func Pretty(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return string(buf)
}

// MustMarshal 序列化失败时返回空字符串（审计路径不应因序列化中断主流程）。
func MustMarshal(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(buf)
}
