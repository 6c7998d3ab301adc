package log

import (
	"errors"
	"os"
	"testing"
	"time"

	"tappytrade.io/internal/sim/engine"
)

func TestAuditLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLog(dir)
	fixed := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	l.w.now = func() time.Time { return fixed }

	for _, op := range []string{"HARVEST", "SELL"} {
		if err := l.WriteAudit(engine.AuditEntry{Time: 1, Player: "p1", Op: op, OK: true}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	path := l.w.PathForHour(fixed)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var ops []string
	err := ReadJSONL(path, func(e engine.AuditEntry) error {
		ops = append(ops, e.Op)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ops) != 2 || ops[0] != "HARVEST" || ops[1] != "SELL" {
		t.Fatalf("ops %v", ops)
	}
}

func TestWriterRotatesPerHour(t *testing.T) {
	w := NewJSONLZstdWriter(t.TempDir(), "catchup")
	at := time.Date(2025, 6, 1, 9, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }
	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := w.PathForHour(at)
	at = at.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	for _, p := range []string{first, w.PathForHour(at)} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
}

type failing struct{ n int }

func (f *failing) WriteAudit(engine.AuditEntry) error {
	f.n++
	return errors.New("disk full")
}

func TestMultiAuditReachesEveryLogger(t *testing.T) {
	a, b := &failing{}, &failing{}
	m := MultiAudit{a, nil, b}
	if err := m.WriteAudit(engine.AuditEntry{}); err == nil {
		t.Fatalf("expected first error")
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("calls a=%d b=%d", a.n, b.n)
	}
}
