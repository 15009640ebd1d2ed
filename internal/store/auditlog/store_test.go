package auditlog

import (
	"context"
	"path/filepath"
	"testing"

	"verdict/internal/ensemble"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAudit(t *testing.T) *AuditStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func record(trace, pair string, ts int64) Record {
	return Record{
		TraceID:      trace,
		Timestamp:    ts,
		AssetPair:    pair,
		Timeframe:    "15m",
		Fingerprint:  "fp-" + trace,
		Action:       "buy",
		Confidence:   72,
		MarketRegime: "trending",
		Opinions: []ensemble.ProviderOpinion{
			{ProviderID: "gpt", Action: ensemble.ActionBuy, Confidence: 80},
		},
	}
}

func TestInsertAndList(t *testing.T) {
	st := newTestAudit(t)
	ctx := context.Background()

	id, err := st.Insert(ctx, record("t1", "BTC/USDT", 1000))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	_, err = st.Insert(ctx, record("t2", "ETH/USDT", 2000))
	require.NoError(t, err)

	records, err := st.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	// 倒序：新的在前
	assert.Equal(t, "t2", records[0].TraceID)
	assert.Equal(t, "t1", records[1].TraceID)
	require.Len(t, records[1].Opinions, 1)
	assert.Equal(t, "gpt", records[1].Opinions[0].ProviderID)
}

func TestListFilters(t *testing.T) {
	st := newTestAudit(t)
	ctx := context.Background()

	_, err := st.Insert(ctx, record("t1", "BTC/USDT", 1000))
	require.NoError(t, err)
	_, err = st.Insert(ctx, record("t2", "ETH/USDT", 2000))
	require.NoError(t, err)
	_, err = st.Insert(ctx, record("t3", "BTC/USDT", 3000))
	require.NoError(t, err)

	byPair, err := st.List(ctx, Query{AssetPair: "BTC/USDT"})
	require.NoError(t, err)
	assert.Len(t, byPair, 2)

	byTrace, err := st.List(ctx, Query{TraceID: "t2"})
	require.NoError(t, err)
	require.Len(t, byTrace, 1)
	assert.Equal(t, "ETH/USDT", byTrace[0].AssetPair)

	since, err := st.List(ctx, Query{Since: 2000})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	limited, err := st.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "t3", limited[0].TraceID)
}
