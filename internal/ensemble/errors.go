package ensemble

import "errors"

// ErrInsufficientData 表示没有任何可聚合的意见——调用方不得据此交易。
var ErrInsufficientData = errors.New("ensemble: 无可聚合的 provider 意见")
