package ensemble

import (
	"fmt"
	"strings"
)

// 中文说明：
// 基础意见校验。这里只拦截契约级错误（confidence 越界、action 非法），
// 低置信度等业务状况交给 SafetyGate 以 violation 数据表达，不走错误通道。

func ValidateOpinion(o *ProviderOpinion) error {
	if o == nil {
		return fmt.Errorf("opinion 为 nil")
	}
	if strings.TrimSpace(o.ProviderID) == "" {
		return fmt.Errorf("缺少 provider_id")
	}
	if !o.Action.Valid() {
		return fmt.Errorf("非法 action: %s", o.Action)
	}
	if o.Confidence < 0 || o.Confidence > 100 {
		return fmt.Errorf("confidence 范围0-100: %v (provider=%s)", o.Confidence, o.ProviderID)
	}
	return nil
}

// ValidateOpinions 逐条校验，返回首个契约错误。
func ValidateOpinions(opinions []ProviderOpinion) error {
	for i := range opinions {
		if err := ValidateOpinion(&opinions[i]); err != nil {
			return fmt.Errorf("opinion[%d]: %w", i, err)
		}
	}
	return nil
}
