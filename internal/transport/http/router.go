package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"verdict/internal/ensemble"
	"verdict/internal/logger"
	"verdict/internal/performance"
	"verdict/internal/regime"
	"verdict/internal/safety"
	"verdict/internal/service"
	"verdict/internal/store"
	"verdict/internal/store/auditlog"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Router 暴露决策相关的 HTTP 接口（聚合/反馈/缓存管理/审计查询）。
type Router struct {
	Service    *service.Service
	Recorder   *performance.Recorder
	Gate       *safety.Gate
	Classifier *regime.Classifier
	Audit      *auditlog.AuditStore
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/decide", r.handleDecide)
	group.POST("/feedback", r.handleFeedback)
	group.GET("/cache/stats", r.handleCacheStats)
	group.POST("/cache/invalidate", r.handleCacheInvalidate)
	if r.Audit != nil {
		group.GET("/audit", r.handleAuditList)
	}
}

func (r *Router) handleDecide(c *gin.Context) {
	if r.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "决策服务未启用"})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateDecideBody(body); err != nil {
		logger.Warnf("[api] decide 请求体非法 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root := gjson.ParseBytes(body)
	opinions, err := ensemble.ParseOpinions(root.Get("opinions").Raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := service.Request{
		AssetPair:    root.Get("asset_pair").String(),
		Timeframe:    root.Get("timeframe").String(),
		SnapshotTime: parseSnapshotTime(root.Get("snapshot_time")),
		MarketRegime: strings.TrimSpace(root.Get("market_regime").String()),
		Opinions:     opinions,
	}
	// 未显式给出市场状态时，尝试根据 K 线分类
	if req.MarketRegime == "" && r.Classifier != nil {
		if candles := parseCandles(root.Get("candles")); len(candles) >= r.Classifier.MinCandles() {
			if rg, clsErr := r.Classifier.Classify(candles); clsErr == nil {
				req.MarketRegime = rg
			} else {
				logger.Warnf("[api] 市场状态分类失败 pair=%s err=%v", req.AssetPair, clsErr)
			}
		}
	}

	decision, cached, err := r.Service.AggregateOrGet(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ensemble.ErrInsufficientData) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, store.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] decide 失败 ip=%s pair=%s err=%v", c.ClientIP(), req.AssetPair, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"decision": decision,
		"cached":   cached,
	}
	if risk, ok := parseRiskPayload(root.Get("risk")); ok && r.Gate != nil {
		violations := r.Gate.Validate(decision, risk)
		resp["violations"] = violations
		resp["approved"] = len(violations) == 0
	}
	c.JSON(http.StatusOK, resp)
}

type feedbackRequest struct {
	ProviderIDs  []string `json:"provider_ids"`
	AssetPair    string   `json:"asset_pair"`
	MarketRegime string   `json:"market_regime"`
	Won          bool     `json:"won"`
}

func (r *Router) handleFeedback(c *gin.Context) {
	if r.Recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "绩效记录未启用"})
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.ProviderIDs) == 0 || strings.TrimSpace(req.AssetPair) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider_ids 与 asset_pair 必填"})
		return
	}
	if err := r.Recorder.Record(c.Request.Context(), req.ProviderIDs, req.AssetPair, req.MarketRegime, req.Won); err != nil {
		logger.Errorf("[api] feedback 记录失败 ip=%s pair=%s err=%v", c.ClientIP(), req.AssetPair, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] feedback ip=%s pair=%s providers=%d won=%v", c.ClientIP(), req.AssetPair, len(req.ProviderIDs), req.Won)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleCacheStats(c *gin.Context) {
	pair := strings.TrimSpace(c.Query("asset_pair"))
	if pair == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset_pair 不能为空"})
		return
	}
	stats, err := r.Service.CacheStats(c.Request.Context(), pair)
	if err != nil {
		logger.Errorf("[api] cache stats 失败 ip=%s pair=%s err=%v", c.ClientIP(), pair, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type invalidateRequest struct {
	Fingerprint string `json:"fingerprint"`
}

func (r *Router) handleCacheInvalidate(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Fingerprint) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fingerprint 不能为空"})
		return
	}
	if err := r.Service.Invalidate(c.Request.Context(), req.Fingerprint); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "缓存条目不存在"})
			return
		}
		logger.Errorf("[api] cache invalidate 失败 ip=%s fp=%s err=%v", c.ClientIP(), req.Fingerprint, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] cache invalidate ip=%s fp=%s", c.ClientIP(), req.Fingerprint)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleAuditList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	since, _ := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	q := auditlog.Query{
		AssetPair: strings.TrimSpace(c.Query("asset_pair")),
		TraceID:   strings.TrimSpace(c.Query("trace_id")),
		Since:     since,
		Limit:     limit,
	}
	records, err := r.Audit.List(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("[api] audit 查询失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// parseSnapshotTime 接受 unix 秒/毫秒或 RFC3339 字符串，缺省取当前时间。
func parseSnapshotTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		if n > 0 {
			return time.Unix(n, 0).UTC()
		}
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

func parseCandles(v gjson.Result) []regime.Candle {
	if !v.IsArray() {
		return nil
	}
	arr := v.Array()
	candles := make([]regime.Candle, 0, len(arr))
	for _, node := range arr {
		candles = append(candles, regime.Candle{
			OpenTime: parseSnapshotTime(node.Get("open_time")),
			Open:     node.Get("open").Float(),
			High:     node.Get("high").Float(),
			Low:      node.Get("low").Float(),
			Close:    node.Get("close").Float(),
			Volume:   node.Get("volume").Float(),
		})
	}
	return candles
}

func parseRiskPayload(v gjson.Result) (safety.RiskPayload, bool) {
	if !v.IsObject() {
		return safety.RiskPayload{}, false
	}
	return safety.RiskPayload{
		PositionSizeUSD: decimal.NewFromFloat(v.Get("position_size_usd").Float()),
		EntryPrice:      decimal.NewFromFloat(v.Get("entry_price").Float()),
		StopLoss:        decimal.NewFromFloat(v.Get("stop_loss").Float()),
		TakeProfit:      decimal.NewFromFloat(v.Get("take_profit").Float()),
		DataStale:       v.Get("data_stale").Bool(),
		DataAge:         time.Duration(v.Get("data_age_seconds").Float() * float64(time.Second)),
	}, true
}
