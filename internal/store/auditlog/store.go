package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"verdict/internal/ensemble"

	_ "modernc.org/sqlite"
)

// AuditStore 持久化每一次新鲜聚合的决策线，方便事后排查/可视化。
// 与 gormstore 分库：审计量大且只追加，不与缓存写路径争锁。
type AuditStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// Record 一条审计记录：一次聚合的输入摘要与产出。
type Record struct {
	ID           int64                      `json:"id"`
	TraceID      string                     `json:"trace_id"`
	Timestamp    int64                      `json:"ts"` // Unix 毫秒
	AssetPair    string                     `json:"asset_pair"`
	Timeframe    string                     `json:"timeframe"`
	Fingerprint  string                     `json:"fingerprint"`
	Action       string                     `json:"action"`
	Confidence   float64                    `json:"confidence"`
	MarketRegime string                     `json:"market_regime,omitempty"`
	Cached       bool                       `json:"cached"`
	Opinions     []ensemble.ProviderOpinion `json:"opinions,omitempty"`
	Breakdown    *ensemble.VoteBreakdown    `json:"breakdown,omitempty"`
}

// Query 审计查询过滤条件。
type Query struct {
	AssetPair string
	TraceID   string
	Since     int64 // Unix 毫秒，0 表示不限
	Limit     int
}

func New(path string) (*AuditStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &AuditStore{db: db, path: path, ownsDB: true}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			trace_id TEXT,
			asset_pair TEXT NOT NULL,
			timeframe TEXT,
			fingerprint TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence REAL NOT NULL,
			market_regime TEXT,
			cached INTEGER NOT NULL DEFAULT 0,
			opinions_json TEXT,
			breakdown_json TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_audit_pair_ts_id ON decision_audit(asset_pair, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_audit_trace ON decision_audit(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init audit schema failed: %w", err)
		}
	}
	return nil
}

// Close 关闭底层 DB。
func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *AuditStore) handle() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("audit store 未初始化")
	}
	return db, nil
}

// Insert 追加一条审计记录，返回自增 ID。
func (s *AuditStore) Insert(ctx context.Context, rec Record) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	ts := rec.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	enc := func(v interface{}) string {
		if v == nil {
			return ""
		}
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO decision_audit
			(ts, trace_id, asset_pair, timeframe, fingerprint, action, confidence,
			 market_regime, cached, opinions_json, breakdown_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts,
		rec.TraceID,
		rec.AssetPair,
		rec.Timeframe,
		rec.Fingerprint,
		rec.Action,
		rec.Confidence,
		rec.MarketRegime,
		boolToInt(rec.Cached),
		enc(rec.Opinions),
		enc(rec.Breakdown),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// List 按过滤条件倒序返回审计记录。
func (s *AuditStore) List(ctx context.Context, q Query) ([]Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if strings.TrimSpace(q.AssetPair) != "" {
		where = append(where, "asset_pair = ?")
		args = append(args, q.AssetPair)
	}
	if strings.TrimSpace(q.TraceID) != "" {
		where = append(where, "trace_id = ?")
		args = append(args, q.TraceID)
	}
	if q.Since > 0 {
		where = append(where, "ts >= ?")
		args = append(args, q.Since)
	}
	query := `SELECT id, ts, trace_id, asset_pair, timeframe, fingerprint, action,
		confidence, market_regime, cached, opinions_json, breakdown_json FROM decision_audit`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                     Record
			cached                  int
			opinionsRaw, bdRaw      sql.NullString
			traceID, regime, tframe sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &traceID, &rec.AssetPair, &tframe,
			&rec.Fingerprint, &rec.Action, &rec.Confidence, &regime, &cached,
			&opinionsRaw, &bdRaw); err != nil {
			return nil, err
		}
		rec.TraceID = traceID.String
		rec.Timeframe = tframe.String
		rec.MarketRegime = regime.String
		rec.Cached = cached != 0
		if opinionsRaw.Valid && opinionsRaw.String != "" {
			_ = json.Unmarshal([]byte(opinionsRaw.String), &rec.Opinions)
		}
		if bdRaw.Valid && bdRaw.String != "" {
			_ = json.Unmarshal([]byte(bdRaw.String), &rec.Breakdown)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
