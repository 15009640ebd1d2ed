package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 中文说明：
// 审计日志独立于常规日志输出：每次新鲜聚合都会落一条分段记录
// （决策 JSON + 票型细分），便于事后排查"为什么做出这个决定"。

var (
	auditMu          sync.Mutex
	auditLog         *log.Logger
	auditDumpInputs  bool
)

// SetAuditWriter 设置审计输出目标；传 nil 关闭审计。
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags)
}

// EnableAuditInputDump 控制是否同时落盘原始 Provider 意见。
func EnableAuditInputDump(enabled bool) {
	auditMu.Lock()
	auditDumpInputs = enabled
	auditMu.Unlock()
}

type auditSection struct {
	Title string
	Body  string
}

func logAudit(assetPair, traceID string, sections []auditSection) {
	auditMu.Lock()
	out := auditLog
	auditMu.Unlock()
	if out == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	if assetPair != "" {
		b.WriteString("[")
		b.WriteString(assetPair)
		b.WriteString("]")
	}
	if traceID != "" {
		b.WriteString("[")
		b.WriteString(traceID)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	out.Print(b.String())
}

// LogDecisionAudit 记录一次新鲜聚合：决策 JSON、票型细分，以及（可选）原始意见。
func LogDecisionAudit(assetPair, traceID, decisionJSON, breakdownJSON, opinionsJSON string) {
	sections := []auditSection{
		{Title: "DECISION", Body: decisionJSON},
	}
	if strings.TrimSpace(breakdownJSON) != "" {
		sections = append(sections, auditSection{Title: "VOTES", Body: breakdownJSON})
	}
	auditMu.Lock()
	dump := auditDumpInputs
	auditMu.Unlock()
	if dump && strings.TrimSpace(opinionsJSON) != "" {
		sections = append(sections, auditSection{Title: "OPINIONS", Body: opinionsJSON})
	}
	logAudit(assetPair, traceID, sections)
}
