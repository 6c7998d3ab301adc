package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	persistlog "tappytrade.io/internal/persistence/log"
	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/persistence/snapshot"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/engine"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

var at = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func rules() farm.Rules {
	return farm.Rules{Cat: catalogs.MustDefault(), Tune: tuning.Defaults()}
}

func TestInspectSaveAndPreviewCatchUp(t *testing.T) {
	dir := t.TempDir()
	r := rules()
	st := farm.New(r, at.Add(-2*time.Hour).UnixMilli())
	st.FarmName = "Hilltop"
	st.Money = 321
	st.Workers = []farm.Worker{{Plot: 0, Sub: 0}}
	data, err := save.Encode(st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	store := snapshot.NewFileStore(filepath.Join(dir, "saves"))
	if err := store.Save(context.Background(), "p1", data); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out bytes.Buffer
	if err := run(&out, r, options{player: "p1", dataDir: dir, at: at, archives: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"snapshot v1 player=p1 schema=3",
		`farm="Hilltop" money=321.00`,
		`"worker_cycles":1440`,
		"archives=0",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestInspectMissingSave(t *testing.T) {
	var out bytes.Buffer
	if err := run(&out, rules(), options{player: "ghost", dataDir: t.TempDir(), at: at}); err == nil {
		t.Fatalf("expected an error for a missing save")
	}
}

func TestSummarizeAudit(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewAuditLog(dir)
	entries := []engine.AuditEntry{
		{Time: 1, Player: "p1", Op: "HARVEST", OK: true},
		{Time: 2, Player: "p1", Op: "SELL", Code: "INSUFFICIENT_INVENTORY"},
		{Time: 3, Player: "p1", Op: "HARVEST", OK: true},
	}
	for _, e := range entries {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "audit", "*.jsonl.zst"))
	if len(files) != 1 {
		t.Fatalf("audit files %v", files)
	}

	var out bytes.Buffer
	if err := summarizeAudit(&out, files[0]); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "audit entries=3") || !strings.Contains(got, "INSUFFICIENT_INVENTORY") {
		t.Fatalf("summary:\n%s", got)
	}
}
