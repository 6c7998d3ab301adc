package log

import (
	"path/filepath"

	"tappytrade.io/internal/sim/engine"
)

// AuditLog records every player command outcome.
type AuditLog struct{ w *JSONLZstdWriter }

func NewAuditLog(dataDir string) *AuditLog {
	return &AuditLog{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLog) WriteAudit(e engine.AuditEntry) error { return l.w.Write(e) }
func (l *AuditLog) Close() error                         { return l.w.Close() }

// CatchUpLog records every offline reconciliation.
type CatchUpLog struct{ w *JSONLZstdWriter }

func NewCatchUpLog(dataDir string) *CatchUpLog {
	return &CatchUpLog{w: NewJSONLZstdWriter(filepath.Join(dataDir, "catchup"), "catchup")}
}

func (l *CatchUpLog) WriteCatchUp(e engine.CatchUpEntry) error { return l.w.Write(e) }
func (l *CatchUpLog) Close() error                             { return l.w.Close() }

// MultiAudit fans one entry out to several audit loggers. The first error wins.
type MultiAudit []engine.AuditLogger

func (m MultiAudit) WriteAudit(e engine.AuditEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteAudit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type MultiCatchUp []engine.CatchUpLogger

func (m MultiCatchUp) WriteCatchUp(e engine.CatchUpEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteCatchUp(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
