package archive

import (
	"testing"
	"time"

	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/persistence/snapshot"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

func TestBackupStateBeforeReset(t *testing.T) {
	dir := t.TempDir()
	r := farm.Rules{Cat: catalogs.MustDefault(), Tune: tuning.Defaults()}
	st := farm.New(r, 1000)
	st.Money = 4321
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	path, err := BackupState(dir, "p1", "reset", st, at)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	h, body, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if h.Player != "p1" || h.SchemaVersion != farm.SchemaVersion {
		t.Fatalf("header %+v", h)
	}
	got, err := save.Decode(body, r, 0, nil)
	if err != nil {
		t.Fatalf("decode archived: %v", err)
	}
	if got.Money != 4321 {
		t.Fatalf("archived money %v", got.Money)
	}

	if _, err := BackupState(dir, "p1", "reset", st, at.Add(time.Hour)); err != nil {
		t.Fatalf("second backup: %v", err)
	}
	metas, err := List(dir, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 2 || metas[0].Money != 4321 || metas[0].Reason != "reset" || metas[0].CreatedAt > metas[1].CreatedAt {
		t.Fatalf("metas %+v", metas)
	}
	if none, _ := List(dir, "nobody"); len(none) != 0 {
		t.Fatalf("unexpected metas for unknown player")
	}
}
