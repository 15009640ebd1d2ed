package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"verdict/internal/cache"
	"verdict/internal/ensemble"
	"verdict/internal/performance"
	"verdict/internal/regime"
	"verdict/internal/safety"
	"verdict/internal/service"
	"verdict/internal/store/gormstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "verdict.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	aggregator := ensemble.NewAggregator(performance.NewWeightSource(st), ensemble.Config{})
	svc := service.New(cache.New(st), aggregator, nil, service.Config{})
	srv, err := NewServer(ServerConfig{
		Addr: ":0",
		API: &Router{
			Service:    svc,
			Recorder:   performance.NewRecorder(st),
			Gate:       safety.NewGate(safety.Config{}),
			Classifier: regime.NewClassifier(regime.Config{}),
		},
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decideBody() map[string]any {
	return map[string]any{
		"asset_pair":    "BTC/USDT",
		"timeframe":     "15m",
		"snapshot_time": 1748779650,
		"opinions": []map[string]any{
			{"provider_id": "gpt", "action": "buy", "confidence": 80},
			{"provider_id": "claude", "action": "buy", "confidence": 75},
		},
	}
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, newTestServer(t), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDecide_FreshThenCached(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/decide", decideBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Cached   bool                         `json:"cached"`
		Decision *ensemble.AggregatedDecision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Equal(t, ensemble.ActionBuy, resp.Decision.Action)
	assert.NotEmpty(t, resp.Decision.DecisionHash)

	rec = doJSON(t, srv, http.MethodPost, "/api/decide", decideBody())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
}

func TestDecide_SchemaRejections(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"缺asset_pair", func(b map[string]any) { delete(b, "asset_pair") }},
		{"缺opinions", func(b map[string]any) { delete(b, "opinions") }},
		{"opinions为空", func(b map[string]any) { b["opinions"] = []any{} }},
		{"非法market_regime", func(b map[string]any) { b["market_regime"] = "sideways" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := decideBody()
			tc.mutate(body)
			rec := doJSON(t, srv, http.MethodPost, "/api/decide", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestDecide_WithRiskViolations(t *testing.T) {
	srv := newTestServer(t)

	body := decideBody()
	body["risk"] = map[string]any{
		"position_size_usd": 1000,
		"entry_price":       100,
		"stop_loss":         95,
		"take_profit":       96, // RR 0.8 < 1.0
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/decide", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Approved   *bool              `json:"approved"`
		Violations []safety.Violation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Approved)
	assert.False(t, *resp.Approved)
	assert.NotEmpty(t, resp.Violations)
}

func TestFeedbackAndStats(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/feedback", map[string]any{
		"provider_ids":  []string{"gpt", "claude"},
		"asset_pair":    "BTC/USDT",
		"market_regime": "trending",
		"won":           true,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/api/feedback", map[string]any{
		"provider_ids": []string{},
		"asset_pair":   "BTC/USDT",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 未查询过的资产对返回零值统计
	rec = doJSON(t, srv, http.MethodGet, "/api/cache/stats?asset_pair=BTC/USDT", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheInvalidate(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/decide", decideBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Decision *ensemble.AggregatedDecision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doJSON(t, srv, http.MethodPost, "/api/cache/invalidate", map[string]any{
		"fingerprint": resp.Decision.DecisionHash,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/cache/invalidate", map[string]any{"fingerprint": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 失效后再次 decide 重新计算
	rec = doJSON(t, srv, http.MethodPost, "/api/decide", decideBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var again struct {
		Cached bool `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.False(t, again.Cached)
}
