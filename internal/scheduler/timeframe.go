package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseTimeframe parses "15m", "1h", "4h", "1d", "1w" into time.Duration.
// Returns (0, false) on invalid input.
func ParseTimeframe(timeframe string) (time.Duration, bool) {
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if timeframe == "" {
		return 0, false
	}
	unit := timeframe[len(timeframe)-1]
	numStr := strings.TrimSpace(timeframe[:len(timeframe)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// BucketStart 将时间规整到 timeframe 粒度的起点（UTC）。
// 无法解析的 timeframe 按 1m 处理，保证同一快照窗口内的时间落入同一桶。
func BucketStart(ts time.Time, timeframe string) time.Time {
	d, ok := ParseTimeframe(timeframe)
	if !ok || d <= 0 {
		d = time.Minute
	}
	return ts.UTC().Truncate(d)
}
