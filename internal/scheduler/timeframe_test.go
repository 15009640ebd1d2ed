package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4H", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"30s", 30 * time.Second, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"15x", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseTimeframe(tc.in)
		assert.Equal(t, tc.ok, ok, "input=%q", tc.in)
		assert.Equal(t, tc.want, got, "input=%q", tc.in)
	}
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 7, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), BucketStart(ts, "15m"))
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), BucketStart(ts, "1h"))
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), BucketStart(ts, "4h"))

	// 桶边界本身归入自己的桶
	edge := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	assert.Equal(t, edge, BucketStart(edge, "15m"))

	// 非法 timeframe 回退到 1m 规整
	assert.Equal(t, time.Date(2025, 6, 1, 12, 7, 0, 0, time.UTC), BucketStart(ts, "bogus"))
}
