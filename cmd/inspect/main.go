package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tappytrade.io/internal/persistence/archive"
	"tappytrade.io/internal/persistence/indexdb"
	persistlog "tappytrade.io/internal/persistence/log"
	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/persistence/snapshot"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/engine"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

type options struct {
	savePath   string
	player     string
	dataDir    string
	configDir  string
	at         time.Time
	auditPath  string
	archives   bool
	catchUps   int
	jsonOutput bool
}

func main() {
	var (
		savePath  = flag.String("save", "", "path to a .save.zst snapshot or a raw JSON save document")
		player    = flag.String("player", "", "player id; reads <data>/saves/<player>.save.zst when -save is empty")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		configDir = flag.String("configs", "./configs", "config directory")
		at        = flag.String("at", "", "RFC3339 time to preview the catch-up at (default: now)")
		auditPath = flag.String("audit", "", "audit-*.jsonl.zst file to summarize (optional)")
		archives  = flag.Bool("archives", false, "list reset archives for -player")
		catchUps  = flag.Int("catchups", 0, "print the last N indexed catch-ups for -player")
		asJSON    = flag.Bool("json", false, "print the migrated save document instead of a summary")
	)
	flag.Parse()

	opts := options{
		savePath:   *savePath,
		player:     *player,
		dataDir:    *dataDir,
		configDir:  *configDir,
		at:         time.Now(),
		auditPath:  *auditPath,
		archives:   *archives,
		catchUps:   *catchUps,
		jsonOutput: *asJSON,
	}
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -at:", err)
			os.Exit(2)
		}
		opts.at = t
	}
	if opts.savePath == "" && opts.player == "" && opts.auditPath == "" {
		fmt.Fprintln(os.Stderr, "missing -save, -player or -audit")
		os.Exit(2)
	}

	cats, err := catalogs.Load(opts.configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(filepath.Join(opts.configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	if err := run(os.Stdout, farm.Rules{Cat: cats, Tune: tune}, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(w io.Writer, rules farm.Rules, opts options) error {
	path := opts.savePath
	if path == "" && opts.player != "" {
		path = snapshot.NewFileStore(filepath.Join(opts.dataDir, "saves")).Path(opts.player)
	}
	if path != "" {
		if err := inspectSave(w, rules, path, opts); err != nil {
			return err
		}
	}
	if opts.auditPath != "" {
		if err := summarizeAudit(w, opts.auditPath); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	if opts.archives && opts.player != "" {
		metas, err := archive.List(opts.dataDir, opts.player)
		if err != nil {
			return fmt.Errorf("archives: %w", err)
		}
		fmt.Fprintf(w, "archives=%d\n", len(metas))
		for _, m := range metas {
			fmt.Fprintf(w, "  %s reason=%s money=%.2f plots=%d workers=%d harvested=%d\n",
				m.CreatedAt, m.Reason, m.Money, m.Plots, m.Workers, m.Harvested)
		}
	}
	if opts.catchUps > 0 && opts.player != "" {
		if err := recentCatchUps(w, opts); err != nil {
			return fmt.Errorf("catch-ups: %w", err)
		}
	}
	return nil
}

func readSaveFile(path string) ([]byte, *snapshot.Header, error) {
	if strings.HasSuffix(path, ".zst") {
		h, body, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return nil, nil, err
		}
		return body, &h, nil
	}
	b, err := os.ReadFile(path)
	return b, nil, err
}

func inspectSave(w io.Writer, rules farm.Rules, path string, opts options) error {
	data, h, err := readSaveFile(path)
	if err != nil {
		return fmt.Errorf("read save: %w", err)
	}
	if h != nil {
		fmt.Fprintf(w, "snapshot v%d player=%s schema=%d saved_at=%s size=%d\n",
			h.Version, h.Player, h.SchemaVersion, time.UnixMilli(h.SavedAt).UTC().Format(time.RFC3339), h.Size)
	}

	var raw save.Doc
	if err := json.Unmarshal(data, &raw); err == nil {
		fmt.Fprintf(w, "document schema=%d\n", save.VersionOf(raw))
	}
	st, err := save.Decode(data, rules, opts.at.UnixMilli(), nil)
	if errors.Is(err, save.ErrNotFound) {
		return fmt.Errorf("save %s is unreadable", path)
	}
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		b, err := json.MarshalIndent(save.FromState(st), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	} else {
		printState(w, st, rules)
	}

	sum, err := previewCatchUp(st, rules, opts.at)
	if err != nil {
		return err
	}
	b, _ := json.Marshal(sum)
	fmt.Fprintf(w, "catch-up at %s: %s\n", opts.at.UTC().Format(time.RFC3339), b)
	return nil
}

func printState(w io.Writer, st *farm.State, rules farm.Rules) {
	name := st.FarmName
	if name == "" {
		name = save.DefaultFarmName
	}
	fmt.Fprintf(w, "farm=%q money=%.2f inventory=%d/%d plots=%d workers=%d\n",
		name, st.Money, st.Inventory.Total(), rules.Capacity(st), len(st.Plots), len(st.Workers))
	ids := make([]string, 0, len(st.Inventory))
	for id := range st.Inventory {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %-12s %d\n", id, st.Inventory[id])
	}
	for i, p := range st.Plots {
		types := make([]string, len(p.Subs))
		for j, s := range p.Subs {
			types[j] = fmt.Sprintf("%s@%d(%.1f)", s.Type, s.Level, s.Stored)
		}
		fmt.Fprintf(w, "  plot %d: %s\n", i, strings.Join(types, " "))
	}
	fmt.Fprintf(w, "stats harvested=%d sold=%d earned=%.2f built=%d orders=%d achievements=%d streak=%d\n",
		st.Stats.Harvested, st.Stats.Sold, st.Stats.Earned, st.Stats.Built,
		len(st.LimitOrders), len(st.Achievements), st.DailyStreak)
	fmt.Fprintf(w, "last_update=%s\n", time.UnixMilli(st.LastUpdate).UTC().Format(time.RFC3339))
}

// previewCatchUp runs the offline reconciliation on a copy of st as if the
// player came back at at.
func previewCatchUp(st *farm.State, rules farm.Rules, at time.Time) (engine.CatchUpSummary, error) {
	eng, err := engine.New(engine.Config{
		Player:   "inspect",
		Catalogs: rules.Cat,
		Tuning:   rules.Tune,
		Clock:    clock.NewFake(at),
	}, st.Clone())
	if err != nil {
		return engine.CatchUpSummary{}, err
	}
	return eng.CatchUp(), nil
}

func summarizeAudit(w io.Writer, path string) error {
	ops := map[string]int{}
	codes := map[string]int{}
	total := 0
	err := persistlog.ReadJSONL(path, func(e engine.AuditEntry) error {
		total++
		ops[e.Op]++
		if !e.OK {
			codes[e.Code]++
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "audit entries=%d\n", total)
	for _, k := range sortedKeys(ops) {
		fmt.Fprintf(w, "  op %-20s %d\n", k, ops[k])
	}
	for _, k := range sortedKeys(codes) {
		fmt.Fprintf(w, "  rejected %-24s %d\n", k, codes[k])
	}
	return nil
}

func recentCatchUps(w io.Writer, opts options) error {
	dbPath := filepath.Join(opts.dataDir, "index", "farms.sqlite")
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}
	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer idx.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	entries, err := idx.RecentCatchUps(ctx, opts.player, opts.catchUps)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "catch-ups=%d\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s offline=%.0fs applied=%.0fs cycles=%d harvests=%d capped=%v\n",
			time.UnixMilli(e.Time).UTC().Format(time.RFC3339), e.Summary.OfflineSec, e.Summary.AppliedSec,
			e.Summary.WorkerCycles, e.Summary.Harvests, e.Summary.Capped)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
