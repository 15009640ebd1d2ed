package performance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"verdict/internal/logger"
	"verdict/internal/pkg/symbol"
	"verdict/internal/store"
)

// 中文说明：
// 反馈闭环：交易结束后把实际胜负回写进绩效存储，
// 影响后续聚合中各 provider 的票重。每个 provider 单独累加，
// 单键的读-改-写由存储层原子化，这里只负责展开与容错。

// Recorder 交易结果回写器。
type Recorder struct {
	store store.PerformanceStore
}

func NewRecorder(st store.PerformanceStore) *Recorder {
	return &Recorder{store: st}
}

// Record 为参与决策的每个 provider 记录一次胜/负。
// 单个 provider 写入失败不阻断其余写入，最终聚合返回所有错误。
func (r *Recorder) Record(ctx context.Context, providerIDs []string, assetPair, regime string, won bool) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("recorder 未初始化")
	}
	pair := symbol.Normalize(assetPair)
	var errs []error
	for _, id := range providerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := r.store.RecordOutcome(ctx, id, pair, regime, won); err != nil {
			logger.Warnf("feedback: 回写绩效失败 (provider=%s pair=%s regime=%s): %v", id, pair, regime, err)
			errs = append(errs, fmt.Errorf("provider %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Debugf("feedback: 已记录 %d 个 provider 的结果 (pair=%s regime=%s won=%v)", len(providerIDs), pair, regime, won)
	return nil
}
