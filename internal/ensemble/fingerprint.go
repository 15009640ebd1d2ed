package ensemble

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"verdict/internal/pkg/symbol"
	"verdict/internal/scheduler"
)

// 中文说明：
// 指纹是缓存正确性的根基：同一市场快照（资产对 + 周期 + 规整时间 + 意见集合）
// 必须得到完全相同的摘要，且意见的到达顺序不参与计算——
// 集合在哈希前按 (provider_id, action, confidence) 规范化排序。
// 顺序敏感会造成假 miss（重复计算），键不敏感会造成假 hit（混淆不同局面），
// 两者都不可接受。

// Fingerprint 生成决策指纹（sha256 hex，固定 64 字符）。
func Fingerprint(assetPair, timeframe string, ts time.Time, opinions []ProviderOpinion) string {
	canon := make([]ProviderOpinion, len(opinions))
	copy(canon, opinions)
	sort.SliceStable(canon, func(i, j int) bool {
		if canon[i].ProviderID != canon[j].ProviderID {
			return canon[i].ProviderID < canon[j].ProviderID
		}
		if canon[i].Action != canon[j].Action {
			return canon[i].Action < canon[j].Action
		}
		return canon[i].Confidence < canon[j].Confidence
	})

	var b strings.Builder
	b.WriteString(symbol.Normalize(assetPair))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(timeframe)))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(scheduler.BucketStart(ts, timeframe).Unix(), 10))
	for _, o := range canon {
		b.WriteByte('|')
		b.WriteString(o.ProviderID)
		b.WriteByte(':')
		b.WriteString(string(o.Action))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(o.Confidence, 'f', -1, 64))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
